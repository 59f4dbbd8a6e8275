package transporttest

import (
	"encoding/binary"
	"sort"
	"strings"
	"sync"

	"github.com/bytesnake/hex/internal/proto"
)

// Library is an in-memory hex server state: tracks with PCM16 stereo audio,
// playlists and tokens. Its Handle method is a Handler.
type Library struct {
	mu sync.Mutex

	tracks    map[string]proto.Track
	audio     map[string][]byte
	playlists map[string]*playlist
	tokens    map[uint32]proto.Token
	votes     map[string]int
	lastToken *uint32

	streams  map[proto.PacketID]*streamPos
	searches map[proto.PacketID]int

	// PacketSize is the number of bytes returned per StreamNext.
	PacketSize int
	// PageSize is the number of tracks per search page.
	PageSize int
	// EndWithError signals end of stream with the server's ReachedEnd error
	// instead of an empty packet.
	EndWithError bool
	// DropPulls makes the next n StreamNext requests go unanswered.
	DropPulls int
}

type playlist struct {
	meta proto.Playlist
	keys []string
}

type streamPos struct {
	key string
	off int
}

func NewLibrary() *Library {
	return &Library{
		tracks:     make(map[string]proto.Track),
		audio:      make(map[string][]byte),
		playlists:  make(map[string]*playlist),
		tokens:     make(map[uint32]proto.Token),
		votes:      make(map[string]int),
		streams:    make(map[proto.PacketID]*streamPos),
		searches:   make(map[proto.PacketID]int),
		PacketSize: 4096,
		PageSize:   2,
	}
}

// Ramp returns frames of stereo PCM16 LE where the left channel counts up
// from start, wrapping to 0 at 32768, and the right channel is its negation.
func Ramp(start, frames int) []byte {
	b := make([]byte, frames*4)
	for i := 0; i < frames; i++ {
		v := int16((start + i) % 32768)
		binary.LittleEndian.PutUint16(b[i*4:], uint16(v))
		binary.LittleEndian.PutUint16(b[i*4+2:], uint16(-v))
	}
	return b
}

// AddTrack stores a track and its audio. Duration is derived from the audio
// when unset.
func (l *Library) AddTrack(t proto.Track, audio []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if t.Duration == 0 {
		t.Duration = float64(len(audio)/4) / proto.SourceRate
	}
	if t.Channels == 0 {
		t.Channels = 2
	}
	l.tracks[t.Key] = t
	l.audio[t.Key] = audio
}

// AddPlaylist stores a playlist over existing track keys.
func (l *Library) AddPlaylist(p proto.Playlist, keys ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p.Count = uint32(len(keys))
	l.playlists[p.Key] = &playlist{meta: p, keys: keys}
}

func (l *Library) Token(n uint32) (proto.Token, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.tokens[n]
	return t, ok
}

func (l *Library) Votes(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.votes[key]
}

// OpenStreams returns the number of streams not yet ended.
func (l *Library) OpenStreams() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.streams)
}

func (l *Library) Handle(req proto.Request) []byte {
	l.mu.Lock()
	defer l.mu.Unlock()

	id, op := req.ID, req.Action.Op()
	fail := func(msg string) []byte { return proto.EncodeError(id, op, msg) }
	ok := func(r proto.Result) []byte { return proto.EncodeAnswer(id, op, r) }

	switch a := req.Action.(type) {
	case proto.Search:
		var hits []proto.Track
		for _, t := range l.sortedTracks() {
			if a.Query == "" || strings.Contains(strings.ToLower(t.Title), strings.ToLower(a.Query)) {
				hits = append(hits, t)
			}
		}
		from := l.searches[id]
		to := min(from+l.PageSize, len(hits))
		from = min(from, to)
		l.searches[id] = to
		more := to < len(hits)
		if !more {
			delete(l.searches, id)
		}
		return ok(proto.SearchResult{Query: a.Query, Tracks: hits[from:to], More: more})

	case proto.GetTrack:
		t, found := l.tracks[a.Key]
		if !found {
			return fail("Database(NotFound)")
		}
		return ok(t)

	case proto.StreamNext:
		if l.DropPulls > 0 {
			l.DropPulls--
			return nil
		}
		s := l.streams[id]
		if a.Key != nil {
			if _, found := l.audio[*a.Key]; !found {
				return fail("Database(NotFound)")
			}
			s = &streamPos{key: *a.Key}
			l.streams[id] = s
		}
		if s == nil {
			return fail("no stream for packet id")
		}
		data := l.audio[s.key]
		if s.off >= len(data) {
			if l.EndWithError {
				return fail("MusicContainer(ReachedEnd)")
			}
			return ok(proto.StreamPacket{})
		}
		end := min(s.off+l.PacketSize, len(data))
		pkt := data[s.off:end]
		s.off = end
		return ok(proto.StreamPacket{Data: pkt})

	case proto.StreamSeek:
		s := l.streams[id]
		if s == nil {
			return fail("no stream for packet id")
		}
		s.off = min(int(a.Sample)*4, len(l.audio[s.key]))
		return ok(proto.StreamSeekResult{Sample: uint32(s.off / 4)})

	case proto.StreamEnd:
		delete(l.streams, id)
		return ok(proto.Empty{})

	case proto.VoteForTrack:
		l.votes[a.Key]++
		return ok(proto.Empty{})

	case proto.GetPlaylists:
		var out proto.Playlists
		for _, p := range l.playlists {
			out = append(out, p.meta)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
		return ok(out)

	case proto.GetPlaylist:
		p, found := l.playlists[a.Key]
		if !found {
			return fail("Database(NotFound)")
		}
		return ok(proto.PlaylistTracks{Playlist: p.meta, Tracks: l.tracksOf(p.keys)})

	case proto.AddToPlaylist:
		p, found := l.playlists[a.Playlist]
		if !found {
			return fail("Database(NotFound)")
		}
		p.keys = append(p.keys, a.Key)
		p.meta.Count = uint32(len(p.keys))
		return ok(p.meta)

	case proto.GetToken:
		t, found := l.tokens[a.Token]
		if !found {
			return fail("Database(NotFound)")
		}
		r := proto.TokenResult{Token: t}
		if p, found := l.playlists[t.Key]; found {
			meta := p.meta
			r.Playlist = &meta
			r.Tracks = l.tracksOf(p.keys)
		}
		n := a.Token
		l.lastToken = &n
		return ok(r)

	case proto.CreateToken:
		n := uint32(len(l.tokens))
		l.tokens[n] = proto.Token{Token: n}
		return ok(proto.TokenNumber{Token: n})

	case proto.UpdateToken:
		t, found := l.tokens[a.Token]
		if !found {
			return fail("Database(NotFound)")
		}
		if a.Key != nil {
			t.Key = *a.Key
		}
		if a.Played != nil {
			t.Played = nil
			if *a.Played != "" {
				t.Played = strings.Split(*a.Played, ",")
			}
		}
		if a.Pos != nil {
			t.Pos = *a.Pos
		}
		l.tokens[a.Token] = t
		return ok(proto.Empty{})

	case proto.LastToken:
		if l.lastToken == nil {
			return ok(proto.LastTokenResult{})
		}
		return ok(proto.LastTokenResult{Token: *l.lastToken, Found: true})
	}
	return fail("not supported by test library")
}

func (l *Library) sortedTracks() []proto.Track {
	out := make([]proto.Track, 0, len(l.tracks))
	for _, t := range l.tracks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (l *Library) tracksOf(keys []string) []proto.Track {
	out := make([]proto.Track, 0, len(keys))
	for _, k := range keys {
		if t, found := l.tracks[k]; found {
			out = append(out, t)
		}
	}
	return out
}
