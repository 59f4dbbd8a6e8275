package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/bytesnake/hex/internal/proto"
	"github.com/bytesnake/hex/internal/transport"
	"github.com/bytesnake/hex/internal/transport/transporttest"
)

func setup(t *testing.T, lib *transporttest.Library, cache TrackCache) (*Client, *transporttest.Server) {
	t.Helper()
	srv := transporttest.New(lib.Handle)
	t.Cleanup(srv.Close)
	tc := transport.New(transport.Options{URL: srv.URL(), ReconnectDelay: 20 * time.Millisecond, RequestTimeout: 2 * time.Second})
	t.Cleanup(func() { tc.Close() })
	if err := tc.Connect(); err != nil {
		t.Fatal(err)
	}
	return New(tc, cache), srv
}

func library() *transporttest.Library {
	lib := transporttest.NewLibrary()
	lib.AddTrack(proto.Track{Key: "a", Title: "Alpha"}, transporttest.Ramp(0, 3000))
	lib.AddTrack(proto.Track{Key: "b", Title: "Beta"}, transporttest.Ramp(0, 1000))
	lib.AddTrack(proto.Track{Key: "c", Title: "Gamma"}, transporttest.Ramp(0, 1000))
	lib.AddTrack(proto.Track{Key: "d", Title: "Delta"}, transporttest.Ramp(0, 1000))
	lib.AddTrack(proto.Track{Key: "e", Title: "Epsilon"}, transporttest.Ramp(0, 1000))
	return lib
}

func TestSearchCollectsPages(t *testing.T) {
	c, srv := setup(t, library(), nil)
	tracks, err := c.Search(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(tracks) != 5 {
		t.Fatalf("got %d tracks", len(tracks))
	}
	reqs := srv.Received()
	if len(reqs) != 3 {
		t.Fatalf("expected 3 pages, server saw %d requests", len(reqs))
	}
	for _, r := range reqs[1:] {
		if r.ID != reqs[0].ID {
			t.Fatal("pages must share one packet id")
		}
	}
}

func TestGetTracksKeepsOrder(t *testing.T) {
	c, _ := setup(t, library(), nil)
	keys := []string{"e", "a", "d", "b", "c"}
	got, err := c.GetTracks(context.Background(), keys)
	if err != nil {
		t.Fatal(err)
	}
	for i, k := range keys {
		if got[i].Key != k {
			t.Fatalf("[%d] = %s, want %s", i, got[i].Key, k)
		}
	}
	if _, err := c.GetTracks(context.Background(), []string{"a", "nope"}); err == nil {
		t.Fatal("missing key did not fail")
	}
}

type memCache struct {
	mu     sync.Mutex
	tracks map[string]proto.Track
}

func (m *memCache) Track(key string) (proto.Track, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tracks[key]
	return t, ok, nil
}

func (m *memCache) PutTrack(t proto.Track) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracks[t.Key] = t
	return nil
}

func (m *memCache) DeleteTrack(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tracks, key)
	return nil
}

func TestGetTrackCacheFallback(t *testing.T) {
	cache := &memCache{tracks: map[string]proto.Track{"x": {Key: "x", Title: "cached"}}}

	tc := transport.New(transport.Options{URL: "ws://127.0.0.1:1/", RequestTimeout: 30 * time.Millisecond})
	defer tc.Close()
	c := New(tc, cache)

	tr, err := c.GetTrack(context.Background(), "x")
	if err != nil {
		t.Fatal(err)
	}
	if tr.Title != "cached" {
		t.Fatalf("got %+v", tr)
	}
	if _, err := c.GetTrack(context.Background(), "y"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("uncached key: %v", err)
	}
}

func TestGetTrackFillsCache(t *testing.T) {
	cache := &memCache{tracks: map[string]proto.Track{}}
	c, _ := setup(t, library(), cache)
	if _, err := c.GetTrack(context.Background(), "b"); err != nil {
		t.Fatal(err)
	}
	if tr, ok, _ := cache.Track("b"); !ok || tr.Title != "Beta" {
		t.Fatal("track not cached")
	}
	// Application errors never fall back to the cache.
	cache.PutTrack(proto.Track{Key: "gone"})
	var ae *proto.AppError
	if _, err := c.GetTrack(context.Background(), "gone"); !errors.As(err, &ae) {
		t.Fatalf("err = %v", err)
	}
}

func TestStreamReadsUntilEOF(t *testing.T) {
	for _, endWithError := range []bool{false, true} {
		lib := library()
		lib.PacketSize = 1000
		lib.EndWithError = endWithError
		c, srv := setup(t, lib, nil)

		s := c.OpenStream("b")
		var got []byte
		for {
			pkt, err := s.Next(context.Background())
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				t.Fatal(err)
			}
			got = append(got, pkt...)
		}
		if !bytes.Equal(got, transporttest.Ramp(0, 1000)) {
			t.Fatalf("endWithError=%v: stream data differs (%d bytes)", endWithError, len(got))
		}
		if _, err := s.Next(context.Background()); !errors.Is(err, io.EOF) {
			t.Fatal("Next after end:", err)
		}
		if err := s.Close(context.Background()); err != nil {
			t.Fatal(err)
		}
		if lib.OpenStreams() != 0 {
			t.Fatal("StreamEnd did not release the stream")
		}
		reqs := srv.Received()
		if reqs[0].Action.(proto.StreamNext).Key == nil {
			t.Fatal("first pull without key")
		}
		for _, r := range reqs[1:] {
			if sn, ok := r.Action.(proto.StreamNext); ok && sn.Key != nil {
				t.Fatal("later pull carried a key")
			}
		}
	}
}

func TestStreamSeek(t *testing.T) {
	lib := library()
	lib.PacketSize = 400
	c, _ := setup(t, lib, nil)

	s := c.OpenStream("a")
	got, err := s.Seek(context.Background(), 2000)
	if err != nil {
		t.Fatal(err)
	}
	if got != 2000 {
		t.Fatalf("seek landed at %d", got)
	}
	pkt, err := s.Next(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(pkt, transporttest.Ramp(2000, 100)) {
		t.Fatal("packet after seek does not start at the target sample")
	}
}

func TestTokens(t *testing.T) {
	lib := library()
	lib.AddPlaylist(proto.Playlist{Key: "p", Title: "Mix"}, "a", "b")
	c, _ := setup(t, lib, nil)
	ctx := context.Background()

	n, err := c.CreateToken(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.BindToken(ctx, n, "p"); err != nil {
		t.Fatal(err)
	}
	if err := c.SaveTokenProgress(ctx, n, []string{"a"}, 12.5); err != nil {
		t.Fatal(err)
	}
	r, err := c.Token(ctx, n)
	if err != nil {
		t.Fatal(err)
	}
	if r.Playlist == nil || r.Playlist.Key != "p" || len(r.Tracks) != 2 {
		t.Fatalf("got %+v", r)
	}
	if len(r.Token.Played) != 1 || r.Token.Played[0] != "a" || r.Token.Pos != 12.5 {
		t.Fatalf("token %+v", r.Token)
	}
	last, found, err := c.LastToken(ctx)
	if err != nil || !found || last != n {
		t.Fatalf("LastToken = %d %v %v", last, found, err)
	}
}
