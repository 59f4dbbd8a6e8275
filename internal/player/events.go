package player

import "github.com/bytesnake/hex/internal/proto"

// EventKind says what changed.
type EventKind int

const (
	QueueChanged EventKind = iota
	TrackChanged
	PositionChanged
	PlaybackChanged
	TrackLoaded // the current track is fully buffered
)

var eventNames = [...]string{"queue", "track", "position", "playback", "loaded"}

func (k EventKind) String() string {
	if int(k) < len(eventNames) {
		return eventNames[k]
	}
	return "unknown"
}

// Event is published to subscribers on every state change.
type Event struct {
	Kind    EventKind
	Pos     int          // queue position
	Track   *proto.Track // current track, nil for an empty queue
	Playing bool
	Seconds float64 // in-track position
}

// Subscribe returns a channel receiving engine events. Slow subscribers miss
// events rather than stall the engine.
func (e *Engine) Subscribe() (ch <-chan Event, cancel func()) {
	c := make(chan Event, 32)

	e.subMu.Lock()
	e.subs[c] = struct{}{}
	e.subMu.Unlock()

	cancel = func() {
		e.subMu.Lock()
		if _, ok := e.subs[c]; ok {
			delete(e.subs, c)
			close(c)
		}
		e.subMu.Unlock()
	}
	return c, cancel
}

// eventLocked builds an event from the engine state. Caller holds mu.
func (e *Engine) eventLocked(kind EventKind) Event {
	ev := Event{Kind: kind, Pos: e.pos, Playing: e.playing, Seconds: e.elapsedLocked()}
	if e.pos < len(e.queue) {
		t := e.queue[e.pos]
		ev.Track = &t
	}
	return ev
}

func (e *Engine) publish(ev Event) {
	e.subMu.RLock()
	defer e.subMu.RUnlock()

	for c := range e.subs {
		select {
		case c <- ev:
		default:
		}
	}
}

func (e *Engine) closeSubs() {
	e.subMu.Lock()
	for c := range e.subs {
		close(c)
	}
	e.subs = make(map[chan Event]struct{})
	e.subMu.Unlock()
}
