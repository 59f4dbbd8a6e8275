// Package api exposes every hex server operation as a typed method on top of
// the transport multiplexer.
package api

import (
	"context"
	"errors"
	"fmt"

	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/sync/errgroup"

	"github.com/bytesnake/hex/internal/proto"
	"github.com/bytesnake/hex/internal/transport"
)

var log = logging.Logger("api")

// maxSearchPages bounds a paged search in case the server never clears More.
const maxSearchPages = 256

// fetchParallel bounds concurrent GetTrack calls in GetTracks.
const fetchParallel = 8

// Caller is the part of the transport the API needs.
type Caller interface {
	Call(ctx context.Context, id proto.PacketID, a proto.Action) (proto.Result, error)
}

var _ Caller = (*transport.Client)(nil)

// TrackCache stores track snapshots locally. GetTrack refreshes it on every
// successful fetch and falls back to it when the server cannot be reached.
type TrackCache interface {
	Track(key string) (proto.Track, bool, error)
	PutTrack(t proto.Track) error
	DeleteTrack(key string) error
}

// Client is the typed hex API.
type Client struct {
	t     Caller
	cache TrackCache
}

// New wraps a transport. cache may be nil.
func New(t Caller, cache TrackCache) *Client {
	return &Client{t: t, cache: cache}
}

func call[T any](ctx context.Context, c *Client, id proto.PacketID, a proto.Action) (T, error) {
	var zero T
	res, err := c.t.Call(ctx, id, a)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", a.Op(), err)
	}
	v, ok := res.(T)
	if !ok {
		return zero, fmt.Errorf("%s: unexpected result %T", a.Op(), res)
	}
	return v, nil
}

func exec(ctx context.Context, c *Client, a proto.Action) error {
	_, err := call[proto.Empty](ctx, c, proto.PacketID{}, a)
	return err
}

// SearchPages runs a paged search. All pages share one packet id; fn is
// called per page and may stop the iteration by returning false.
func (c *Client) SearchPages(ctx context.Context, query string, fn func(proto.SearchResult) bool) error {
	id := proto.NewPacketID()
	for i := 0; i < maxSearchPages; i++ {
		page, err := call[proto.SearchResult](ctx, c, id, proto.Search{Query: query})
		if err != nil {
			return err
		}
		if !fn(page) || !page.More {
			return nil
		}
	}
	log.Warnf("search %q: stopped after %d pages", query, maxSearchPages)
	return nil
}

// Search collects all pages of a search.
func (c *Client) Search(ctx context.Context, query string) ([]proto.Track, error) {
	var out []proto.Track
	err := c.SearchPages(ctx, query, func(p proto.SearchResult) bool {
		out = append(out, p.Tracks...)
		return true
	})
	return out, err
}

// GetTrack fetches one track, caching the snapshot.
func (c *Client) GetTrack(ctx context.Context, key string) (proto.Track, error) {
	t, err := call[proto.Track](ctx, c, proto.PacketID{}, proto.GetTrack{Key: key})
	if err == nil {
		if c.cache != nil {
			if perr := c.cache.PutTrack(t); perr != nil {
				log.Warnf("cache track %s: %v", key, perr)
			}
		}
		return t, nil
	}

	var ae *proto.AppError
	if c.cache == nil || errors.As(err, &ae) || errors.Is(err, proto.ErrUnencodable) {
		return t, err
	}
	cached, ok, cerr := c.cache.Track(key)
	if cerr != nil || !ok {
		return t, err
	}
	log.Infof("track %s served from cache: %v", key, err)
	return cached, nil
}

// GetTracks fetches keys in parallel and returns them in input order.
func (c *Client) GetTracks(ctx context.Context, keys []string) ([]proto.Track, error) {
	out := make([]proto.Track, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchParallel)
	for i, key := range keys {
		g.Go(func() error {
			t, err := c.GetTrack(gctx, key)
			if err != nil {
				return err
			}
			out[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateTrack changes the set fields of a track and returns its key.
func (c *Client) UpdateTrack(ctx context.Context, u proto.UpdateTrack) (string, error) {
	r, err := call[proto.TrackKey](ctx, c, proto.PacketID{}, u)
	if err != nil {
		return "", err
	}
	if c.cache != nil {
		_ = c.cache.DeleteTrack(u.Key)
	}
	return r.Key, nil
}

func (c *Client) Suggestion(ctx context.Context, key string) (proto.Suggestion, error) {
	return call[proto.Suggestion](ctx, c, proto.PacketID{}, proto.GetSuggestion{Key: key})
}

func (c *Client) DeleteTrack(ctx context.Context, key string) error {
	if err := exec(ctx, c, proto.DeleteTrack{Key: key}); err != nil {
		return err
	}
	if c.cache != nil {
		_ = c.cache.DeleteTrack(key)
	}
	return nil
}

func (c *Client) Vote(ctx context.Context, key string) error {
	return exec(ctx, c, proto.VoteForTrack{Key: key})
}

func (c *Client) UploadYoutube(ctx context.Context, path string) error {
	return exec(ctx, c, proto.UploadYoutube{Path: path})
}

// UploadTrack sends a whole audio file; the server returns the new key.
func (c *Client) UploadTrack(ctx context.Context, name, format string, data []byte) (string, error) {
	r, err := call[proto.TrackKey](ctx, c, proto.PacketID{}, proto.UploadTrack{Name: name, Format: format, Data: data})
	return r.Key, err
}

func (c *Client) UploadProgress(ctx context.Context) ([]proto.UploadProgress, error) {
	r, err := call[proto.UploadProgressList](ctx, c, proto.PacketID{}, proto.AskUploadProgress{})
	return r, err
}

func (c *Client) Download(ctx context.Context, format string, keys []string) error {
	return exec(ctx, c, proto.Download{Format: format, Tracks: keys})
}

func (c *Client) DownloadProgress(ctx context.Context) ([]proto.DownloadProgress, error) {
	r, err := call[proto.DownloadProgressList](ctx, c, proto.PacketID{}, proto.AskDownloadProgress{})
	return r, err
}

func (c *Client) ClearBuffer(ctx context.Context) error {
	return exec(ctx, c, proto.ClearBuffer{})
}

func (c *Client) Summary(ctx context.Context) ([]proto.SummaryDay, error) {
	r, err := call[proto.Summary](ctx, c, proto.PacketID{}, proto.GetSummarise{})
	return r, err
}

func (c *Client) Events(ctx context.Context) ([]proto.Event, error) {
	r, err := call[proto.EventList](ctx, c, proto.PacketID{}, proto.GetEvents{})
	return r, err
}
