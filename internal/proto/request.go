package proto

import (
	"fmt"
	"math"
	"unicode/utf8"

	"google.golang.org/protobuf/encoding/protowire"
)

// Action is a request payload. Each operation has exactly one Action type;
// Op reports which.
type Action interface {
	Op() Op
	appendParams(b []byte) []byte
}

type validator interface {
	validate() error
}

func unencodable(op Op, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrUnencodable, op, fmt.Sprintf(format, args...))
}

func requireKey(op Op, name, v string) error {
	if v == "" {
		return unencodable(op, "%s is empty", name)
	}
	return nil
}

type (
	Search struct {
		Query string
	}
	GetTrack struct {
		Key string
	}
	// StreamNext pulls the next packet batch. Key starts a new stream and is
	// only sent on the first pull of a session.
	StreamNext struct {
		Key *string
	}
	StreamEnd  struct{}
	StreamSeek struct {
		Sample uint32 // at SourceRate
	}
	// UpdateTrack changes only the fields that are non-nil.
	UpdateTrack struct {
		Key       string
		Title     *string
		Album     *string
		Interpret *string
		People    *string
		Composer  *string
	}
	GetSuggestion struct {
		Key string
	}
	AddPlaylist struct {
		Name string
	}
	DeletePlaylist struct {
		Key string
	}
	SetPlaylistImage struct {
		Key string
	}
	AddToPlaylist struct {
		Key      string
		Playlist string
	}
	DeleteFromPlaylist struct {
		Key      string
		Playlist string
	}
	UpdatePlaylist struct {
		Key   string
		Title *string
		Desc  *string
	}
	GetPlaylists        struct{}
	GetPlaylist         struct{ Key string }
	GetPlaylistsOfTrack struct{ Key string }
	DeleteTrack         struct{ Key string }
	UploadYoutube       struct{ Path string }
	UploadTrack         struct {
		Name   string
		Format string
		Data   []byte
	}
	VoteForTrack      struct{ Key string }
	AskUploadProgress struct{}
	GetToken          struct{ Token uint32 }
	UpdateToken       struct {
		Token  uint32
		Key    *string
		Played *string
		Pos    *float64
	}
	CreateToken  struct{}
	LastToken    struct{}
	GetSummarise struct{}
	GetEvents    struct{}
	Download     struct {
		Format string
		Tracks []string
	}
	AskDownloadProgress struct{}
	ClearBuffer         struct{}
)

func (Search) Op() Op              { return OpSearch }
func (GetTrack) Op() Op            { return OpGetTrack }
func (StreamNext) Op() Op          { return OpStreamNext }
func (StreamEnd) Op() Op           { return OpStreamEnd }
func (StreamSeek) Op() Op          { return OpStreamSeek }
func (UpdateTrack) Op() Op         { return OpUpdateTrack }
func (GetSuggestion) Op() Op       { return OpGetSuggestion }
func (AddPlaylist) Op() Op         { return OpAddPlaylist }
func (DeletePlaylist) Op() Op      { return OpDeletePlaylist }
func (SetPlaylistImage) Op() Op    { return OpSetPlaylistImage }
func (AddToPlaylist) Op() Op       { return OpAddToPlaylist }
func (DeleteFromPlaylist) Op() Op  { return OpDeleteFromPlaylist }
func (UpdatePlaylist) Op() Op      { return OpUpdatePlaylist }
func (GetPlaylists) Op() Op        { return OpGetPlaylists }
func (GetPlaylist) Op() Op         { return OpGetPlaylist }
func (GetPlaylistsOfTrack) Op() Op { return OpGetPlaylistsOfTrack }
func (DeleteTrack) Op() Op         { return OpDeleteTrack }
func (UploadYoutube) Op() Op       { return OpUploadYoutube }
func (UploadTrack) Op() Op         { return OpUploadTrack }
func (VoteForTrack) Op() Op        { return OpVoteForTrack }
func (AskUploadProgress) Op() Op   { return OpAskUploadProgress }
func (GetToken) Op() Op            { return OpGetToken }
func (UpdateToken) Op() Op         { return OpUpdateToken }
func (CreateToken) Op() Op         { return OpCreateToken }
func (LastToken) Op() Op           { return OpLastToken }
func (GetSummarise) Op() Op        { return OpGetSummarise }
func (GetEvents) Op() Op           { return OpGetEvents }
func (Download) Op() Op            { return OpDownload }
func (AskDownloadProgress) Op() Op { return OpAskDownloadProgress }
func (ClearBuffer) Op() Op         { return OpClearBuffer }

func (a Search) appendParams(b []byte) []byte { return appendString(b, 1, a.Query) }
func (a GetTrack) appendParams(b []byte) []byte { return appendString(b, 1, a.Key) }
func (a StreamNext) appendParams(b []byte) []byte { return appendStringPtr(b, 1, a.Key) }
func (StreamEnd) appendParams(b []byte) []byte { return b }
func (a StreamSeek) appendParams(b []byte) []byte { return appendUint(b, 1, uint64(a.Sample)) }
func (a UpdateTrack) appendParams(b []byte) []byte {
	b = appendString(b, 1, a.Key)
	b = appendStringPtr(b, 2, a.Title)
	b = appendStringPtr(b, 3, a.Album)
	b = appendStringPtr(b, 4, a.Interpret)
	b = appendStringPtr(b, 5, a.People)
	b = appendStringPtr(b, 6, a.Composer)
	return b
}
func (a GetSuggestion) appendParams(b []byte) []byte  { return appendString(b, 1, a.Key) }
func (a AddPlaylist) appendParams(b []byte) []byte    { return appendString(b, 1, a.Name) }
func (a DeletePlaylist) appendParams(b []byte) []byte { return appendString(b, 1, a.Key) }
func (a SetPlaylistImage) appendParams(b []byte) []byte {
	return appendString(b, 1, a.Key)
}
func (a AddToPlaylist) appendParams(b []byte) []byte {
	return appendString(appendString(b, 1, a.Key), 2, a.Playlist)
}
func (a DeleteFromPlaylist) appendParams(b []byte) []byte {
	return appendString(appendString(b, 1, a.Key), 2, a.Playlist)
}
func (a UpdatePlaylist) appendParams(b []byte) []byte {
	b = appendString(b, 1, a.Key)
	b = appendStringPtr(b, 2, a.Title)
	b = appendStringPtr(b, 3, a.Desc)
	return b
}
func (GetPlaylists) appendParams(b []byte) []byte          { return b }
func (a GetPlaylist) appendParams(b []byte) []byte         { return appendString(b, 1, a.Key) }
func (a GetPlaylistsOfTrack) appendParams(b []byte) []byte { return appendString(b, 1, a.Key) }
func (a DeleteTrack) appendParams(b []byte) []byte         { return appendString(b, 1, a.Key) }
func (a UploadYoutube) appendParams(b []byte) []byte       { return appendString(b, 1, a.Path) }
func (a UploadTrack) appendParams(b []byte) []byte {
	b = appendString(b, 1, a.Name)
	b = appendString(b, 2, a.Format)
	b = appendBytes(b, 3, a.Data)
	return b
}
func (a VoteForTrack) appendParams(b []byte) []byte { return appendString(b, 1, a.Key) }
func (AskUploadProgress) appendParams(b []byte) []byte {
	return b
}
func (a GetToken) appendParams(b []byte) []byte { return appendUint(b, 1, uint64(a.Token)) }
func (a UpdateToken) appendParams(b []byte) []byte {
	b = appendUint(b, 1, uint64(a.Token))
	b = appendStringPtr(b, 2, a.Key)
	b = appendStringPtr(b, 3, a.Played)
	if a.Pos != nil {
		b = appendDouble(b, 4, *a.Pos)
	}
	return b
}
func (CreateToken) appendParams(b []byte) []byte  { return b }
func (LastToken) appendParams(b []byte) []byte    { return b }
func (GetSummarise) appendParams(b []byte) []byte { return b }
func (GetEvents) appendParams(b []byte) []byte    { return b }
func (a Download) appendParams(b []byte) []byte {
	b = appendString(b, 1, a.Format)
	for _, k := range a.Tracks {
		b = appendString(b, 2, k)
	}
	return b
}
func (AskDownloadProgress) appendParams(b []byte) []byte { return b }
func (ClearBuffer) appendParams(b []byte) []byte         { return b }

func (a GetTrack) validate() error      { return requireKey(OpGetTrack, "key", a.Key) }
func (a UpdateTrack) validate() error   { return requireKey(OpUpdateTrack, "key", a.Key) }
func (a GetSuggestion) validate() error { return requireKey(OpGetSuggestion, "key", a.Key) }
func (a DeletePlaylist) validate() error {
	return requireKey(OpDeletePlaylist, "key", a.Key)
}
func (a SetPlaylistImage) validate() error {
	return requireKey(OpSetPlaylistImage, "key", a.Key)
}
func (a AddToPlaylist) validate() error {
	if err := requireKey(OpAddToPlaylist, "key", a.Key); err != nil {
		return err
	}
	return requireKey(OpAddToPlaylist, "playlist", a.Playlist)
}
func (a DeleteFromPlaylist) validate() error {
	if err := requireKey(OpDeleteFromPlaylist, "key", a.Key); err != nil {
		return err
	}
	return requireKey(OpDeleteFromPlaylist, "playlist", a.Playlist)
}
func (a UpdatePlaylist) validate() error { return requireKey(OpUpdatePlaylist, "key", a.Key) }
func (a GetPlaylist) validate() error    { return requireKey(OpGetPlaylist, "key", a.Key) }
func (a GetPlaylistsOfTrack) validate() error {
	return requireKey(OpGetPlaylistsOfTrack, "key", a.Key)
}
func (a DeleteTrack) validate() error   { return requireKey(OpDeleteTrack, "key", a.Key) }
func (a UploadYoutube) validate() error { return requireKey(OpUploadYoutube, "path", a.Path) }
func (a UploadTrack) validate() error {
	if err := requireKey(OpUploadTrack, "format", a.Format); err != nil {
		return err
	}
	if len(a.Data) == 0 {
		return unencodable(OpUploadTrack, "no data")
	}
	return nil
}
func (a VoteForTrack) validate() error { return requireKey(OpVoteForTrack, "key", a.Key) }
func (a Download) validate() error {
	if err := requireKey(OpDownload, "format", a.Format); err != nil {
		return err
	}
	if len(a.Tracks) == 0 {
		return unencodable(OpDownload, "no tracks")
	}
	return nil
}

// Request is a decoded request frame.
type Request struct {
	ID     PacketID
	Action Action
}

// EncodeRequest serializes one request frame. It fails with ErrUnencodable,
// before producing any bytes, when the action cannot be represented.
func EncodeRequest(id PacketID, a Action) ([]byte, error) {
	if a == nil {
		return nil, fmt.Errorf("%w: nil action", ErrUnencodable)
	}
	op := a.Op()
	if !op.Valid() {
		return nil, unencodable(op, "operation outside the closed set")
	}
	if v, ok := a.(validator); ok {
		if err := v.validate(); err != nil {
			return nil, err
		}
	}
	params := a.appendParams(nil)
	if !validUTF8Fields(op, params) {
		return nil, unencodable(op, "string field is not valid utf-8")
	}

	b := make([]byte, 0, 32+len(params))
	b = appendBytes(b, fieldID, id.bytes())
	b = appendUint(b, fieldOp, uint64(op))
	b = appendBytes(b, fieldParams, params)
	return b, nil
}

// validUTF8Fields checks every length-delimited field except the raw upload
// payload.
func validUTF8Fields(op Op, params []byte) bool {
	m, err := parseMsg(params)
	if err != nil {
		return false
	}
	for _, f := range m {
		if f.typ != protowire.BytesType || op == OpUploadTrack && f.num == 3 {
			continue
		}
		if !utf8.Valid(f.b) {
			return false
		}
	}
	return true
}

var actionDecoders = map[Op]func(m msg) Action{
	OpSearch:     func(m msg) Action { return Search{Query: m.str(1)} },
	OpGetTrack:   func(m msg) Action { return GetTrack{Key: m.str(1)} },
	OpStreamNext: func(m msg) Action { return StreamNext{Key: m.strPtr(1)} },
	OpStreamEnd:  func(msg) Action { return StreamEnd{} },
	OpStreamSeek: func(m msg) Action { return StreamSeek{Sample: uint32(m.uint(1))} },
	OpUpdateTrack: func(m msg) Action {
		return UpdateTrack{
			Key:       m.str(1),
			Title:     m.strPtr(2),
			Album:     m.strPtr(3),
			Interpret: m.strPtr(4),
			People:    m.strPtr(5),
			Composer:  m.strPtr(6),
		}
	},
	OpGetSuggestion:    func(m msg) Action { return GetSuggestion{Key: m.str(1)} },
	OpAddPlaylist:      func(m msg) Action { return AddPlaylist{Name: m.str(1)} },
	OpDeletePlaylist:   func(m msg) Action { return DeletePlaylist{Key: m.str(1)} },
	OpSetPlaylistImage: func(m msg) Action { return SetPlaylistImage{Key: m.str(1)} },
	OpAddToPlaylist: func(m msg) Action {
		return AddToPlaylist{Key: m.str(1), Playlist: m.str(2)}
	},
	OpDeleteFromPlaylist: func(m msg) Action {
		return DeleteFromPlaylist{Key: m.str(1), Playlist: m.str(2)}
	},
	OpUpdatePlaylist: func(m msg) Action {
		return UpdatePlaylist{Key: m.str(1), Title: m.strPtr(2), Desc: m.strPtr(3)}
	},
	OpGetPlaylists:        func(msg) Action { return GetPlaylists{} },
	OpGetPlaylist:         func(m msg) Action { return GetPlaylist{Key: m.str(1)} },
	OpGetPlaylistsOfTrack: func(m msg) Action { return GetPlaylistsOfTrack{Key: m.str(1)} },
	OpDeleteTrack:         func(m msg) Action { return DeleteTrack{Key: m.str(1)} },
	OpUploadYoutube:       func(m msg) Action { return UploadYoutube{Path: m.str(1)} },
	OpUploadTrack: func(m msg) Action {
		return UploadTrack{Name: m.str(1), Format: m.str(2), Data: m.bytes(3)}
	},
	OpVoteForTrack:      func(m msg) Action { return VoteForTrack{Key: m.str(1)} },
	OpAskUploadProgress: func(msg) Action { return AskUploadProgress{} },
	OpGetToken:          func(m msg) Action { return GetToken{Token: uint32(m.uint(1))} },
	OpUpdateToken: func(m msg) Action {
		return UpdateToken{
			Token:  uint32(m.uint(1)),
			Key:    m.strPtr(2),
			Played: m.strPtr(3),
			Pos:    m.doublePtr(4),
		}
	},
	OpCreateToken:         func(msg) Action { return CreateToken{} },
	OpLastToken:           func(msg) Action { return LastToken{} },
	OpGetSummarise:        func(msg) Action { return GetSummarise{} },
	OpGetEvents:           func(msg) Action { return GetEvents{} },
	OpDownload:            func(m msg) Action { return Download{Format: m.str(1), Tracks: m.strings(2)} },
	OpAskDownloadProgress: func(msg) Action { return AskDownloadProgress{} },
	OpClearBuffer:         func(msg) Action { return ClearBuffer{} },
}

// DecodeRequest parses a request frame. It is the server half of the codec
// and is used by test servers.
func DecodeRequest(b []byte) (Request, error) {
	m, err := parseMsg(b)
	if err != nil {
		return Request{}, err
	}
	id, ok := packetIDFrom(m.bytes(fieldID))
	if !ok {
		return Request{}, ErrTruncated
	}
	tag := m.uint(fieldOp)
	if tag > math.MaxUint32 {
		return Request{ID: id}, fmt.Errorf("%w: %d", ErrUnknownOp, tag)
	}
	op := Op(tag)
	dec, ok := actionDecoders[op]
	if !ok {
		return Request{ID: id}, fmt.Errorf("%w: %d", ErrUnknownOp, uint32(op))
	}
	params, err := sub(m, fieldParams)
	if err != nil {
		return Request{ID: id}, err
	}
	return Request{ID: id, Action: dec(params)}, nil
}
