// Package stream runs the per-track fill loop: pull a packet, decode it,
// resample it and push it into the playback ring buffer.
package stream

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"github.com/bytesnake/hex/internal/decode"
	"github.com/bytesnake/hex/internal/proto"
	"github.com/bytesnake/hex/internal/util"
)

var log = logging.Logger("stream")

// ErrEndOfStream is reported by Err once the whole track was pushed.
var ErrEndOfStream = errors.New("stream: end of stream")

// Source is a server-paced packet stream (api.Stream).
type Source interface {
	Next(ctx context.Context) ([]byte, error)
	Seek(ctx context.Context, sample uint32) (uint32, error)
	Close(ctx context.Context) error
}

// Sink is where decoded samples go (util.RingBuffer[float64]).
type Sink interface {
	Push(samples [][]float64) error
	Free() int
	ShouldFill() bool
	Clear()
}

var _ Sink = (*util.RingBuffer[float64])(nil)

// State of a session.
type State int

const (
	Idle State = iota
	Requesting
	Streaming
	Seeking
	Ended
	Failed
	Closed
)

var stateNames = [...]string{"idle", "requesting", "streaming", "seeking", "ended", "failed", "closed"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Options configures a session. Zero values fall back to defaults.
type Options struct {
	Codec      string
	SourceRate int
	OutputRate int
	Channels   int
	Quality    int

	PullTimeout time.Duration // per stream request; negative disables
	Retries     int           // extra attempts after a pull timeout
	Poll        time.Duration // backpressure re-check interval
}

func (o *Options) defaults() {
	if o.Codec == "" {
		o.Codec = "pcm16"
	}
	if o.SourceRate == 0 {
		o.SourceRate = proto.SourceRate
	}
	if o.OutputRate == 0 {
		o.OutputRate = o.SourceRate
	}
	if o.Channels == 0 {
		o.Channels = 2
	}
	if o.Quality == 0 {
		o.Quality = 4
	}
	if o.PullTimeout == 0 {
		o.PullTimeout = util.DefaultRequestTimeout
	}
	if o.Retries == 0 {
		o.Retries = 3
	}
	if o.Poll == 0 {
		o.Poll = 50 * time.Millisecond
	}
}

// Session streams one track into a sink. Gen tags the session so the owner
// can tell its callbacks from those of a superseded session.
type Session struct {
	gen  uint64
	key  string
	src  Source
	sink Sink
	opts Options
	dec  decode.Decoder
	rs   decode.Resampler

	onEnd func(gen uint64)

	mu       sync.Mutex
	state    State
	err      error
	closed   bool
	seekGen  uint64
	seekTo   *float64    // coalesced pending seek, seconds
	leftover [][]float64 // rejected by a full sink
	eof      bool        // source drained, leftover may remain
	offset   int         // output frame the loaded count starts at
	loaded   int         // output frames pushed since offset

	wake chan struct{}
	done chan struct{}
}

// New creates a session. Start launches its worker.
func New(gen uint64, key string, src Source, sink Sink, opts Options, onEnd func(gen uint64)) (*Session, error) {
	opts.defaults()
	dec, err := decode.New(opts.Codec, opts.SourceRate, opts.Channels)
	if err != nil {
		return nil, err
	}
	rs, err := decode.NewResampler(opts.Quality, opts.SourceRate, opts.OutputRate, opts.Channels)
	if err != nil {
		return nil, err
	}
	return &Session{
		gen:   gen,
		key:   key,
		src:   src,
		sink:  sink,
		opts:  opts,
		dec:   dec,
		rs:    rs,
		onEnd: onEnd,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}, nil
}

func (s *Session) Gen() uint64 { return s.gen }
func (s *Session) Key() string { return s.key }

// Start launches the fill loop.
func (s *Session) Start() {
	s.mu.Lock()
	s.state = Requesting
	s.mu.Unlock()
	go s.run()
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Ended reports whether every sample of the track has been pushed.
func (s *Session) Ended() bool { return s.State() == Ended }

// Err returns ErrEndOfStream once ended, the pull error once failed, or nil.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Ended {
		return ErrEndOfStream
	}
	return s.err
}

// Loaded returns the output frame up to which audio was pushed, counted
// from the start of the track.
func (s *Session) Loaded() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offset + s.loaded
}

// Notify wakes the worker, e.g. after the consumer freed space. It never
// blocks, so it may be called from the render callback.
func (s *Session) Notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Seek repositions to sec seconds. The sink is cleared at once and any
// in-flight pull result is discarded; the seek request itself is sent by the
// worker before its next pull. Repeated seeks before that coalesce.
func (s *Session) Seek(sec float64) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.seekGen++
	s.seekTo = &sec
	s.leftover = nil
	s.eof = false
	s.err = nil
	s.offset = int(math.Round(sec * float64(s.opts.OutputRate)))
	s.loaded = 0
	s.state = Seeking
	s.sink.Clear()
	s.mu.Unlock()
	s.Notify()
}

// Close stops the session without blocking. No push happens after Close
// returns. The worker releases the server stream on its way out.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.state = Closed
	s.mu.Unlock()
	s.Notify()
}

// Done is closed when the worker has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) String() string {
	return fmt.Sprintf("session(%d %s %s)", s.gen, s.key, s.State())
}
