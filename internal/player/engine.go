// Package player is the playback engine: a queue of tracks with a cursor,
// one streaming session for the current track and the render callback that
// drains its ring buffer into the output device.
package player

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"github.com/bytesnake/hex/internal/api"
	"github.com/bytesnake/hex/internal/output"
	"github.com/bytesnake/hex/internal/proto"
	"github.com/bytesnake/hex/internal/stream"
	"github.com/bytesnake/hex/internal/util"
)

var log = logging.Logger("player")

var (
	ErrEmptyQueue = errors.New("player: queue is empty")
	ErrLastTrack  = errors.New("player: already at the last track")
	ErrFirstTrack = errors.New("player: already at the first track")
	ErrOutOfRange = errors.New("player: out of range")
	ErrNoToken    = errors.New("player: no token loaded")
)

// Options configures the engine. Zero values fall back to defaults.
type Options struct {
	Stream stream.Options

	BufferSeconds    float64       // ring capacity
	LowWaterSeconds  float64       // refill below this
	RestartThreshold time.Duration // prev restarts the track after this much
	HistorySize      int

	Rand *rand.Rand
}

func (o *Options) defaults() {
	if o.BufferSeconds <= 0 {
		o.BufferSeconds = 10
	}
	if o.LowWaterSeconds <= 0 {
		o.LowWaterSeconds = 4
	}
	if o.LowWaterSeconds > o.BufferSeconds {
		o.LowWaterSeconds = o.BufferSeconds
	}
	if o.RestartThreshold <= 0 {
		o.RestartThreshold = 4 * time.Second
	}
	if o.HistorySize <= 0 {
		o.HistorySize = 64
	}
	if o.Stream.Channels == 0 {
		o.Stream.Channels = 2
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
}

// Engine plays a queue of tracks. All methods are safe for concurrent use.
type Engine struct {
	c    *api.Client
	dev  output.Device
	opts Options
	rate int
	ring *util.RingBuffer[float64]

	mu        sync.Mutex
	queue     []proto.Track
	pos       int
	playing   bool
	sess      *stream.Session
	gen       uint64 // last session generation
	epoch     uint64 // bumped on every load and seek
	frames    int    // output frames into the current track
	finishing bool   // end of track seen by render, advance scheduled
	underruns int
	token     *uint32
	scratch   [][]float64 // render backing store
	view      [][]float64 // render window into scratch

	history *util.History[string]

	subMu sync.RWMutex
	subs  map[chan Event]struct{}
}

// New creates an engine playing through dev. The device is not started
// until Play.
func New(c *api.Client, dev output.Device, opts Options) *Engine {
	opts.defaults()
	rate := dev.SampleRate()
	opts.Stream.OutputRate = rate
	ch := opts.Stream.Channels
	capacity := int(opts.BufferSeconds * float64(rate))
	low := int(opts.LowWaterSeconds * float64(rate))
	return &Engine{
		c:       c,
		dev:     dev,
		opts:    opts,
		rate:    rate,
		ring:    util.NewRingBuffer[float64](ch, capacity, low),
		scratch: make([][]float64, ch),
		view:    make([][]float64, ch),
		history: util.NewHistory[string](opts.HistorySize),
		subs:    make(map[chan Event]struct{}),
	}
}

// AddTracks resolves keys and appends them in order. If the queue was empty
// the first of them becomes current and starts loading.
func (e *Engine) AddTracks(ctx context.Context, keys ...string) error {
	tracks, err := e.c.GetTracks(ctx, keys)
	if err != nil {
		return fmt.Errorf("add tracks: %w", err)
	}
	e.Append(tracks...)
	return nil
}

// Append adds already resolved tracks to the queue.
func (e *Engine) Append(tracks ...proto.Track) {
	if len(tracks) == 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	wasEmpty := len(e.queue) == 0
	e.queue = append(e.queue, tracks...)
	if wasEmpty {
		e.pos = 0
		e.loadLocked()
	}
	e.publish(e.eventLocked(QueueChanged))
}

// Play connects the render callback. Playing twice is a no-op.
func (e *Engine) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.queue) == 0 {
		return ErrEmptyQueue
	}
	if e.playing {
		return nil
	}
	if err := e.dev.Start(e.render); err != nil {
		return fmt.Errorf("start output: %w", err)
	}
	e.playing = true
	log.Infof("playing %s", e.queue[e.pos].Key)
	e.publish(e.eventLocked(PlaybackChanged))
	return nil
}

// Stop disconnects the render callback. Stopping twice is a no-op.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopLocked()
}

func (e *Engine) stopLocked() error {
	if !e.playing {
		return nil
	}
	// render only TryLocks, so stopping the device under mu cannot deadlock.
	if err := e.dev.Stop(); err != nil {
		return fmt.Errorf("stop output: %w", err)
	}
	e.playing = false
	e.publish(e.eventLocked(PlaybackChanged))
	return nil
}

// Next moves to the following entry. At the last entry it fails and the
// position stays.
func (e *Engine) Next() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nextLocked()
}

func (e *Engine) nextLocked() error {
	if len(e.queue) == 0 {
		return ErrEmptyQueue
	}
	if e.pos >= len(e.queue)-1 {
		return ErrLastTrack
	}
	prev := e.queue[e.pos].Key
	e.pos++
	if e.queue[e.pos].Key == prev && e.sess != nil {
		// Same track again: rewind instead of opening a new stream.
		e.history.Push(prev)
		e.seekLocked(0)
		e.publish(e.eventLocked(TrackChanged))
		return nil
	}
	e.loadLocked()
	return nil
}

// Prev restarts the current track once more than the restart threshold has
// played, otherwise moves to the previous entry.
func (e *Engine) Prev() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.queue) == 0 {
		return ErrEmptyQueue
	}
	if e.elapsedLocked() > e.opts.RestartThreshold.Seconds() {
		e.seekLocked(0)
		return nil
	}
	if e.pos == 0 {
		return ErrFirstTrack
	}
	e.pos--
	e.loadLocked()
	return nil
}

// Seek moves within the current track. Positions outside [0, duration] are
// ignored.
func (e *Engine) Seek(sec float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.queue) == 0 {
		return ErrEmptyQueue
	}
	if sec < 0 || sec > e.queue[e.pos].Duration || math.IsNaN(sec) {
		return fmt.Errorf("%w: seek to %.1fs", ErrOutOfRange, sec)
	}
	e.seekLocked(sec)
	return nil
}

func (e *Engine) seekLocked(sec float64) {
	e.epoch++
	e.finishing = false
	e.frames = int(math.Round(sec * float64(e.rate)))
	if e.sess == nil {
		e.loadLocked()
		if e.sess == nil {
			return
		}
		e.frames = int(math.Round(sec * float64(e.rate)))
	}
	e.sess.Seek(sec)
	e.publish(e.eventLocked(PositionChanged))
}

// SetQueuePos makes entry i current and loads it.
func (e *Engine) SetQueuePos(i int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if i < 0 || i >= len(e.queue) {
		return fmt.Errorf("%w: queue position %d", ErrOutOfRange, i)
	}
	e.pos = i
	e.loadLocked()
	return nil
}

// ShuffleBelowCurrent shuffles the entries after the current one. The
// current entry and everything before it stay in place.
func (e *Engine) ShuffleBelowCurrent() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := len(e.queue) - 1; i > e.pos+1; i-- {
		j := e.pos + 1 + e.opts.Rand.IntN(i-e.pos)
		e.queue[i], e.queue[j] = e.queue[j], e.queue[i]
	}
	e.publish(e.eventLocked(QueueChanged))
}

// RemoveTrack deletes entry i. Removing the current entry loads the one that
// takes its place, or the new last entry. Emptying the queue stops playback.
func (e *Engine) RemoveTrack(i int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if i < 0 || i >= len(e.queue) {
		return fmt.Errorf("%w: queue position %d", ErrOutOfRange, i)
	}
	e.queue = slices.Delete(e.queue, i, i+1)

	switch {
	case len(e.queue) == 0:
		e.resetLocked()
	case i < e.pos:
		e.pos--
	case i == e.pos:
		if e.pos >= len(e.queue) {
			e.pos = len(e.queue) - 1
		}
		e.loadLocked()
	}
	e.publish(e.eventLocked(QueueChanged))
	return nil
}

// Clear stops playback, ends the stream and empties the queue.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.queue = nil
	e.resetLocked()
	e.publish(e.eventLocked(QueueChanged))
}

func (e *Engine) resetLocked() {
	if err := e.stopLocked(); err != nil {
		log.Warnf("clear: %v", err)
	}
	e.closeSessionLocked()
	e.ring.Clear()
	e.pos = 0
	e.frames = 0
	e.epoch++
	e.finishing = false
}

// Vote votes for the current track.
func (e *Engine) Vote(ctx context.Context) error {
	e.mu.Lock()
	if len(e.queue) == 0 {
		e.mu.Unlock()
		return ErrEmptyQueue
	}
	key := e.queue[e.pos].Key
	e.mu.Unlock()
	return e.c.Vote(ctx, key)
}

// TimePercentage returns the played fraction of the current track. Reaching
// 1 advances to the next entry, so polling it is enough to move through the
// queue.
func (e *Engine) TimePercentage() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.queue) == 0 {
		return 0
	}
	d := e.queue[e.pos].Duration
	if d <= 0 {
		return 0
	}
	p := e.elapsedLocked() / d
	if p >= 1 {
		p = 1
		if err := e.nextLocked(); err == nil {
			log.Debugf("track time elapsed, advanced to %d", e.pos)
		}
	}
	return p
}

// LoadedPercentage returns the buffered fraction of the current track.
func (e *Engine) LoadedPercentage() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.queue) == 0 || e.sess == nil {
		return 0
	}
	d := e.queue[e.pos].Duration
	if d <= 0 {
		return 0
	}
	return min(float64(e.sess.Loaded())/float64(e.rate)/d, 1)
}

func (e *Engine) elapsedLocked() float64 {
	return float64(e.frames) / float64(e.rate)
}

// Status is a snapshot of the engine.
type Status struct {
	Queue     []proto.Track
	Pos       int
	Playing   bool
	Seconds   float64
	Buffered  float64 // seconds in the ring buffer
	Stream    stream.State
	Underruns int
	Token     *uint32
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Status{
		Queue:     slices.Clone(e.queue),
		Pos:       e.pos,
		Playing:   e.playing,
		Seconds:   e.elapsedLocked(),
		Buffered:  float64(e.ring.Len()) / float64(e.rate),
		Underruns: e.underruns,
	}
	if e.sess != nil {
		s.Stream = e.sess.State()
	}
	if e.token != nil {
		n := *e.token
		s.Token = &n
	}
	return s
}

// Current returns the current track.
func (e *Engine) Current() (proto.Track, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) == 0 {
		return proto.Track{}, false
	}
	return e.queue[e.pos], true
}

// History returns the keys of recently loaded tracks, oldest first.
func (e *Engine) History() []string { return e.history.Snapshot() }

// Close stops playback and releases the stream. Subscriber channels are
// closed.
func (e *Engine) Close() error {
	e.mu.Lock()
	e.queue = nil
	e.resetLocked()
	e.mu.Unlock()
	e.closeSubs()
	return nil
}
