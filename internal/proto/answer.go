package proto

import (
	"fmt"
	"math"
)

// Result is the payload of a successful answer.
type Result interface {
	appendResult(b []byte) []byte
}

type (
	// SearchResult is one page of a search. More is set when another pull
	// with the same id yields further tracks.
	SearchResult struct {
		Query  string
		Tracks []Track
		More   bool
	}
	// StreamPacket carries interleaved stereo PCM16 LE at SourceRate, or
	// opus frames, depending on the server codec. Empty Data marks the end.
	StreamPacket struct {
		Data []byte
	}
	StreamSeekResult struct {
		Sample uint32
	}
	// TrackKey is returned by operations that create or rename a track.
	TrackKey struct {
		Key string
	}
	Suggestion struct {
		Key  string
		Data string
	}
	Playlists      []Playlist
	PlaylistTracks struct {
		Playlist Playlist
		Tracks   []Track
	}
	UploadProgressList []UploadProgress
	// TokenResult is a token with its playlist and tracks, if bound.
	TokenResult struct {
		Token    Token
		Playlist *Playlist
		Tracks   []Track
	}
	TokenNumber struct {
		Token uint32
	}
	LastTokenResult struct {
		Token uint32
		Found bool
	}
	Summary              []SummaryDay
	EventList            []Event
	DownloadProgressList []DownloadProgress
	Empty                struct{}
)

func (r SearchResult) appendResult(b []byte) []byte {
	b = appendString(b, 1, r.Query)
	for _, t := range r.Tracks {
		b = appendBytes(b, 2, t.appendTo(nil))
	}
	if r.More {
		b = appendBool(b, 3, true)
	}
	return b
}

func (t Track) appendResult(b []byte) []byte            { return t.appendTo(b) }
func (p Playlist) appendResult(b []byte) []byte         { return p.appendTo(b) }
func (r StreamPacket) appendResult(b []byte) []byte     { return appendBytes(b, 1, r.Data) }
func (r StreamSeekResult) appendResult(b []byte) []byte { return appendUint(b, 1, uint64(r.Sample)) }
func (r TrackKey) appendResult(b []byte) []byte         { return appendString(b, 1, r.Key) }
func (r Suggestion) appendResult(b []byte) []byte {
	return appendString(appendString(b, 1, r.Key), 2, r.Data)
}
func (r Playlists) appendResult(b []byte) []byte {
	for _, p := range r {
		b = appendBytes(b, 1, p.appendTo(nil))
	}
	return b
}
func (r PlaylistTracks) appendResult(b []byte) []byte {
	b = appendBytes(b, 1, r.Playlist.appendTo(nil))
	for _, t := range r.Tracks {
		b = appendBytes(b, 2, t.appendTo(nil))
	}
	return b
}
func (r UploadProgressList) appendResult(b []byte) []byte {
	for _, u := range r {
		b = appendBytes(b, 1, u.appendTo(nil))
	}
	return b
}
func (r TokenResult) appendResult(b []byte) []byte {
	b = appendBytes(b, 1, r.Token.appendTo(nil))
	if r.Playlist != nil {
		b = appendBytes(b, 2, r.Playlist.appendTo(nil))
	}
	for _, t := range r.Tracks {
		b = appendBytes(b, 3, t.appendTo(nil))
	}
	return b
}
func (r TokenNumber) appendResult(b []byte) []byte { return appendUint(b, 1, uint64(r.Token)) }
func (r LastTokenResult) appendResult(b []byte) []byte {
	if !r.Found {
		return b
	}
	return appendUint(b, 1, uint64(r.Token))
}
func (r Summary) appendResult(b []byte) []byte {
	for _, d := range r {
		b = appendBytes(b, 1, d.appendTo(nil))
	}
	return b
}
func (r EventList) appendResult(b []byte) []byte {
	for _, e := range r {
		b = appendBytes(b, 1, e.appendTo(nil))
	}
	return b
}
func (r DownloadProgressList) appendResult(b []byte) []byte {
	for _, d := range r {
		b = appendBytes(b, 1, d.appendTo(nil))
	}
	return b
}
func (Empty) appendResult(b []byte) []byte { return b }

func decodeEmpty(msg) (Result, error) { return Empty{}, nil }

var resultDecoders = map[Op]func(m msg) (Result, error){
	OpSearch: func(m msg) (Result, error) {
		tracks, err := each(m, 2, trackFrom)
		if err != nil {
			return nil, err
		}
		return SearchResult{Query: m.str(1), Tracks: tracks, More: m.bool(3)}, nil
	},
	OpGetTrack: func(m msg) (Result, error) { return trackFrom(m), nil },
	OpStreamNext: func(m msg) (Result, error) {
		return StreamPacket{Data: m.bytes(1)}, nil
	},
	OpStreamEnd: decodeEmpty,
	OpStreamSeek: func(m msg) (Result, error) {
		return StreamSeekResult{Sample: uint32(m.uint(1))}, nil
	},
	OpUpdateTrack: func(m msg) (Result, error) { return TrackKey{Key: m.str(1)}, nil },
	OpGetSuggestion: func(m msg) (Result, error) {
		return Suggestion{Key: m.str(1), Data: m.str(2)}, nil
	},
	OpAddPlaylist:         func(m msg) (Result, error) { return playlistFrom(m), nil },
	OpDeletePlaylist:      decodeEmpty,
	OpSetPlaylistImage:    decodeEmpty,
	OpAddToPlaylist:       func(m msg) (Result, error) { return playlistFrom(m), nil },
	OpDeleteFromPlaylist:  decodeEmpty,
	OpUpdatePlaylist:      decodeEmpty,
	OpGetPlaylists:        decodePlaylists,
	OpGetPlaylistsOfTrack: decodePlaylists,
	OpGetPlaylist: func(m msg) (Result, error) {
		pm, err := sub(m, 1)
		if err != nil {
			return nil, err
		}
		tracks, err := each(m, 2, trackFrom)
		if err != nil {
			return nil, err
		}
		return PlaylistTracks{Playlist: playlistFrom(pm), Tracks: tracks}, nil
	},
	OpDeleteTrack:   decodeEmpty,
	OpUploadYoutube: decodeEmpty,
	OpUploadTrack:   func(m msg) (Result, error) { return TrackKey{Key: m.str(1)}, nil },
	OpVoteForTrack:  decodeEmpty,
	OpAskUploadProgress: func(m msg) (Result, error) {
		list, err := each(m, 1, uploadProgressFrom)
		return UploadProgressList(list), err
	},
	OpGetToken: func(m msg) (Result, error) {
		tm, err := sub(m, 1)
		if err != nil {
			return nil, err
		}
		r := TokenResult{Token: tokenFrom(tm)}
		if m.has(2) {
			pm, err := sub(m, 2)
			if err != nil {
				return nil, err
			}
			pl := playlistFrom(pm)
			r.Playlist = &pl
		}
		if r.Tracks, err = each(m, 3, trackFrom); err != nil {
			return nil, err
		}
		return r, nil
	},
	OpUpdateToken: decodeEmpty,
	OpCreateToken: func(m msg) (Result, error) { return TokenNumber{Token: uint32(m.uint(1))}, nil },
	OpLastToken: func(m msg) (Result, error) {
		return LastTokenResult{Token: uint32(m.uint(1)), Found: m.has(1)}, nil
	},
	OpGetSummarise: func(m msg) (Result, error) {
		days, err := each(m, 1, summaryDayFrom)
		return Summary(days), err
	},
	OpGetEvents: func(m msg) (Result, error) {
		events, err := each(m, 1, eventFrom)
		return EventList(events), err
	},
	OpDownload: decodeEmpty,
	OpAskDownloadProgress: func(m msg) (Result, error) {
		list, err := each(m, 1, downloadProgressFrom)
		return DownloadProgressList(list), err
	},
	OpClearBuffer: decodeEmpty,
}

func decodePlaylists(m msg) (Result, error) {
	list, err := each(m, 1, playlistFrom)
	return Playlists(list), err
}

// Answer is a decoded answer frame. Exactly one of Result and Err is set.
type Answer struct {
	ID     PacketID
	Op     Op
	Result Result
	Err    *AppError
}

// Value returns the result, or the application error as a Go error.
func (a *Answer) Value() (Result, error) {
	if a.Err != nil {
		return nil, a.Err
	}
	return a.Result, nil
}

// EncodeAnswer serializes an answer frame. The client never sends answers;
// this is the server half of the codec and is used by test servers.
func EncodeAnswer(id PacketID, op Op, r Result) []byte {
	b := appendBytes(nil, fieldID, id.bytes())
	b = appendUint(b, fieldOp, uint64(op))
	if r == nil {
		r = Empty{}
	}
	return appendBytes(b, fieldResult, r.appendResult(nil))
}

// EncodeError serializes an answer frame carrying an application error.
func EncodeError(id PacketID, op Op, message string) []byte {
	b := appendBytes(nil, fieldID, id.bytes())
	b = appendUint(b, fieldOp, uint64(op))
	return appendString(b, fieldError, message)
}

// DecodeAnswer parses an answer frame.
//
// ErrTruncated is returned when the frame or its correlation id cannot be
// read. ErrUnknownOp is returned, together with a partially filled Answer
// carrying the id, when the tag is outside the closed set; the caller can
// still fail the pending request. Application errors are not decode errors:
// they are reported in Answer.Err.
func DecodeAnswer(b []byte) (*Answer, error) {
	m, err := parseMsg(b)
	if err != nil {
		return nil, err
	}
	id, ok := packetIDFrom(m.bytes(fieldID))
	if !ok {
		return nil, ErrTruncated
	}
	tag := m.uint(fieldOp)
	if tag > math.MaxUint32 {
		return &Answer{ID: id}, fmt.Errorf("%w: %d", ErrUnknownOp, tag)
	}
	a := &Answer{ID: id, Op: Op(tag)}
	dec, ok := resultDecoders[a.Op]
	if !ok {
		return a, fmt.Errorf("%w: %d", ErrUnknownOp, uint32(a.Op))
	}
	if m.has(fieldError) {
		a.Err = &AppError{Op: a.Op, Msg: m.str(fieldError)}
		return a, nil
	}
	rm, err := sub(m, fieldResult)
	if err != nil {
		return a, err
	}
	if a.Result, err = dec(rm); err != nil {
		return a, err
	}
	return a, nil
}
