package api

import (
	"context"
	"strings"

	"github.com/bytesnake/hex/internal/proto"
)

func (c *Client) Playlists(ctx context.Context) ([]proto.Playlist, error) {
	r, err := call[proto.Playlists](ctx, c, proto.PacketID{}, proto.GetPlaylists{})
	return r, err
}

// Playlist returns a playlist with its tracks in order.
func (c *Client) Playlist(ctx context.Context, key string) (proto.Playlist, []proto.Track, error) {
	r, err := call[proto.PlaylistTracks](ctx, c, proto.PacketID{}, proto.GetPlaylist{Key: key})
	return r.Playlist, r.Tracks, err
}

func (c *Client) PlaylistsOfTrack(ctx context.Context, key string) ([]proto.Playlist, error) {
	r, err := call[proto.Playlists](ctx, c, proto.PacketID{}, proto.GetPlaylistsOfTrack{Key: key})
	return r, err
}

func (c *Client) AddPlaylist(ctx context.Context, name string) (proto.Playlist, error) {
	return call[proto.Playlist](ctx, c, proto.PacketID{}, proto.AddPlaylist{Name: name})
}

func (c *Client) DeletePlaylist(ctx context.Context, key string) error {
	return exec(ctx, c, proto.DeletePlaylist{Key: key})
}

func (c *Client) SetPlaylistImage(ctx context.Context, key string) error {
	return exec(ctx, c, proto.SetPlaylistImage{Key: key})
}

// AddToPlaylist appends a track and returns the updated playlist.
func (c *Client) AddToPlaylist(ctx context.Context, key, playlist string) (proto.Playlist, error) {
	return call[proto.Playlist](ctx, c, proto.PacketID{}, proto.AddToPlaylist{Key: key, Playlist: playlist})
}

func (c *Client) DeleteFromPlaylist(ctx context.Context, key, playlist string) error {
	return exec(ctx, c, proto.DeleteFromPlaylist{Key: key, Playlist: playlist})
}

// UpdatePlaylist changes the non-nil fields.
func (c *Client) UpdatePlaylist(ctx context.Context, key string, title, desc *string) error {
	return exec(ctx, c, proto.UpdatePlaylist{Key: key, Title: title, Desc: desc})
}

// Token returns a token with its bound playlist and tracks.
func (c *Client) Token(ctx context.Context, token uint32) (proto.TokenResult, error) {
	return call[proto.TokenResult](ctx, c, proto.PacketID{}, proto.GetToken{Token: token})
}

func (c *Client) CreateToken(ctx context.Context) (uint32, error) {
	r, err := call[proto.TokenNumber](ctx, c, proto.PacketID{}, proto.CreateToken{})
	return r.Token, err
}

// LastToken returns the most recently used token, if any.
func (c *Client) LastToken(ctx context.Context) (uint32, bool, error) {
	r, err := call[proto.LastTokenResult](ctx, c, proto.PacketID{}, proto.LastToken{})
	return r.Token, r.Found, err
}

// SaveTokenProgress stores the played keys and the position in seconds.
func (c *Client) SaveTokenProgress(ctx context.Context, token uint32, played []string, pos float64) error {
	joined := strings.Join(played, ",")
	return exec(ctx, c, proto.UpdateToken{Token: token, Played: &joined, Pos: &pos})
}

// BindToken points a token at a playlist and resets its progress.
func (c *Client) BindToken(ctx context.Context, token uint32, playlist string) error {
	empty := ""
	zero := 0.0
	return exec(ctx, c, proto.UpdateToken{Token: token, Key: &playlist, Played: &empty, Pos: &zero})
}
