package api

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/bytesnake/hex/internal/proto"
)

// Stream is the server-paced packet stream of one track. All of its requests
// share one packet id: the first pull names the key, later pulls do not.
// A Stream is not safe for concurrent use; callers keep one request in
// flight at a time.
type Stream struct {
	c       *Client
	id      proto.PacketID
	key     string
	started bool
	ended   bool
}

// OpenStream prepares a stream for key. No request is made until Next or Seek.
func (c *Client) OpenStream(key string) *Stream {
	return &Stream{c: c, id: proto.NewPacketID(), key: key}
}

func (s *Stream) ID() proto.PacketID { return s.id }
func (s *Stream) Key() string        { return s.key }

// isEnd reports whether an application error is the server's end marker.
func isEnd(err error) bool {
	var ae *proto.AppError
	return errors.As(err, &ae) && strings.Contains(ae.Msg, "ReachedEnd")
}

// Next pulls the next packet. It returns io.EOF once the server signals the
// end, either with an empty packet or with its ReachedEnd error.
func (s *Stream) Next(ctx context.Context) ([]byte, error) {
	if s.ended {
		return nil, io.EOF
	}
	var req proto.StreamNext
	if !s.started {
		req.Key = &s.key
	}
	pkt, err := call[proto.StreamPacket](ctx, s.c, s.id, req)
	if err != nil {
		if isEnd(err) {
			s.started = true
			s.ended = true
			return nil, io.EOF
		}
		return nil, err
	}
	s.started = true
	if len(pkt.Data) == 0 {
		s.ended = true
		return nil, io.EOF
	}
	return pkt.Data, nil
}

// Seek repositions the stream to sample (at proto.SourceRate) and returns the
// position the server settled on. A stream that has not been started yet is
// opened first and its first packet discarded.
func (s *Stream) Seek(ctx context.Context, sample uint32) (uint32, error) {
	if !s.started {
		if _, err := s.Next(ctx); err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}
	}
	r, err := call[proto.StreamSeekResult](ctx, s.c, s.id, proto.StreamSeek{Sample: sample})
	if err != nil {
		return 0, err
	}
	s.ended = false
	return r.Sample, nil
}

// Close releases the server side of the stream; later pulls return io.EOF.
// No request is made for streams that never started.
func (s *Stream) Close(ctx context.Context) error {
	wasStarted := s.started
	s.started, s.ended = true, true
	if !wasStarted {
		return nil
	}
	_, err := call[proto.Empty](ctx, s.c, s.id, proto.StreamEnd{})
	return err
}
