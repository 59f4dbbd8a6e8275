package player

import (
	"github.com/bytesnake/hex/internal/stream"
)

// loadLocked replaces the session with one for the current entry. The old
// session is closed first, so it can no longer push into the ring.
func (e *Engine) loadLocked() {
	e.closeSessionLocked()
	e.ring.Clear()
	e.frames = 0
	e.epoch++
	e.finishing = false
	if e.pos >= len(e.queue) {
		return
	}

	t := e.queue[e.pos]
	e.gen++
	s, err := stream.New(e.gen, t.Key, e.c.OpenStream(t.Key), e.ring, e.opts.Stream, e.loaded)
	if err != nil {
		log.Errorf("load %s: %v", t.Key, err)
		return
	}
	e.sess = s
	s.Start()
	e.history.Push(t.Key)
	log.Infof("loaded %s (%s)", t.Key, t.DisplayName())
	e.publish(e.eventLocked(TrackChanged))
}

func (e *Engine) closeSessionLocked() {
	if e.sess == nil {
		return
	}
	e.sess.Close()
	e.sess = nil
}

// loaded is the session's end-of-stream callback. It runs on the session
// worker.
func (e *Engine) loaded(gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == nil || e.sess.Gen() != gen {
		return
	}
	e.publish(e.eventLocked(TrackLoaded))
}

// render is the device callback. It never waits: if the engine is busy or
// the ring runs short it plays silence. Once the session has ended the
// partial tail is played and the advance to the next entry is scheduled.
func (e *Engine) render(out [][2]float64) {
	if !e.mu.TryLock() {
		silence(out)
		return
	}
	defer e.mu.Unlock()

	n := len(out)
	sess := e.sess
	if sess == nil {
		silence(out)
		return
	}
	if cap(e.scratch[0]) < n {
		for ch := range e.scratch {
			e.scratch[ch] = make([]float64, n)
		}
	}
	dst := e.view
	for ch := range dst {
		dst[ch] = e.scratch[ch][:n]
	}

	got := n
	if err := e.ring.PopInto(dst); err != nil {
		got = 0
		if sess.Ended() {
			got = e.ring.Len()
			for ch := range dst {
				dst[ch] = dst[ch][:got]
			}
			if got > 0 && e.ring.PopInto(dst) != nil {
				got = 0
			}
		} else {
			e.underruns++
		}
	}

	left, right := dst[0], dst[0]
	if len(dst) > 1 {
		right = dst[1]
	}
	for i := 0; i < got; i++ {
		out[i] = [2]float64{left[i], right[i]}
	}
	silence(out[got:])
	e.frames += got

	if e.ring.ShouldFill() {
		sess.Notify()
	}
	if got < n && sess.Ended() && e.ring.Len() == 0 && !e.finishing {
		e.finishing = true
		go e.finished(e.epoch)
	}
}

// finished advances past a fully played track. At the end of the queue
// playback stops.
func (e *Engine) finished(epoch uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if epoch != e.epoch {
		return
	}
	err := e.nextLocked()
	if err == nil {
		return
	}
	log.Infof("end of queue: %v", err)
	if err := e.stopLocked(); err != nil {
		log.Warnf("stop: %v", err)
	}
}

func silence(out [][2]float64) {
	for i := range out {
		out[i] = [2]float64{}
	}
}
