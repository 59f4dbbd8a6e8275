package stream

import (
	"context"
	"errors"
	"io"
	"math"
	"time"
)

// run is the single fill loop of a session. Only it touches the decoder,
// the resampler and the source, so there is never more than one pull in
// flight.
func (s *Session) run() {
	defer close(s.done)
	defer s.release()

	timer := time.NewTimer(s.opts.Poll)
	defer timer.Stop()
	sleep := func() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(s.opts.Poll)
		select {
		case <-s.wake:
		case <-timer.C:
		}
	}

	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		seek := s.seekTo
		s.seekTo = nil
		gen := s.seekGen
		state := s.state
		hasLeftover := s.leftover != nil
		eof := s.eof
		s.mu.Unlock()

		switch {
		case seek != nil:
			s.seek(*seek, gen)
		case state == Ended || state == Failed:
			<-s.wake
		case hasLeftover:
			if !s.sink.ShouldFill() {
				sleep()
				continue
			}
			s.flushLeftover(gen)
		case eof:
			s.finish(gen)
		case !s.sink.ShouldFill():
			sleep()
		default:
			s.pull(gen)
		}
	}
}

func (s *Session) superseded(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed || s.seekGen != gen
}

// requestContext bounds one stream request by PullTimeout, if enabled.
func (s *Session) requestContext() (context.Context, context.CancelFunc) {
	if s.opts.PullTimeout < 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), s.opts.PullTimeout)
}

func (s *Session) seek(sec float64, gen uint64) {
	sample := uint32(math.Round(sec * float64(s.opts.SourceRate)))
	ctx, cancel := s.requestContext()
	got, err := s.src.Seek(ctx, sample)
	cancel()

	s.dec.Reset()
	s.rs.Reset()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.seekGen != gen {
		return
	}
	if err != nil {
		log.Errorf("%s: seek to %.1fs: %v", s.key, sec, err)
		s.state = Failed
		s.err = err
		return
	}
	if got != sample {
		s.offset = int(int64(got) * int64(s.opts.OutputRate) / int64(s.opts.SourceRate))
	}
	s.state = Streaming
	log.Debugf("%s: seeked to sample %d", s.key, got)
}

func (s *Session) pull(gen uint64) {
	var (
		pkt []byte
		err error
	)
	for attempt := 0; attempt <= s.opts.Retries; attempt++ {
		// The pull is not tied to Close: an in-flight call completes and
		// its result is dropped below.
		ctx, cancel := s.requestContext()
		pkt, err = s.src.Next(ctx)
		cancel()
		if !errors.Is(err, context.DeadlineExceeded) || s.superseded(gen) {
			break
		}
		log.Warnf("%s: pull timed out (attempt %d of %d)", s.key, attempt+1, s.opts.Retries+1)
	}
	if s.superseded(gen) {
		return
	}

	switch {
	case errors.Is(err, io.EOF):
		s.push(gen, s.rs.Flush(), true)
		return
	case err != nil:
		s.fail(gen, err)
		return
	}

	planar, err := s.dec.Decode(pkt)
	if err != nil {
		s.fail(gen, err)
		return
	}
	s.push(gen, s.rs.Process(planar), false)
}

// fail stops this session's contribution. Playback under-runs; a later
// seek restarts the loop.
func (s *Session) fail(gen uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.seekGen != gen {
		return
	}
	log.Errorf("%s: %v", s.key, err)
	s.state = Failed
	s.err = err
}

func (s *Session) push(gen uint64, samples [][]float64, eof bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.seekGen != gen {
		return
	}
	if s.state == Requesting || s.state == Seeking {
		s.state = Streaming
	}
	if eof {
		s.eof = true
	}
	if len(samples) == 0 || len(samples[0]) == 0 {
		return
	}
	s.pushLocked(samples)
}

// pushLocked pushes as much as fits and keeps the rest as leftover. A full
// sink is backpressure, not an error.
func (s *Session) pushLocked(samples [][]float64) {
	n := len(samples[0])
	free := s.sink.Free()
	if n <= free {
		if err := s.sink.Push(samples); err == nil {
			s.loaded += n
			s.leftover = nil
			return
		}
		free = s.sink.Free()
	}

	rest := samples
	if free > 0 {
		head := make([][]float64, len(samples))
		for ch := range samples {
			head[ch] = samples[ch][:free]
		}
		if err := s.sink.Push(head); err == nil {
			s.loaded += free
			rest = make([][]float64, len(samples))
			for ch := range samples {
				rest[ch] = samples[ch][free:]
			}
		}
	}
	s.leftover = rest
	log.Debugf("%s: sink full, holding %d frames", s.key, len(rest[0]))
}

func (s *Session) flushLeftover(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.seekGen != gen || s.leftover == nil {
		return
	}
	left := s.leftover
	s.leftover = nil
	s.pushLocked(left)
}

func (s *Session) finish(gen uint64) {
	s.mu.Lock()
	if s.closed || s.seekGen != gen || !s.eof || s.leftover != nil || s.state == Ended {
		s.mu.Unlock()
		return
	}
	s.state = Ended
	loaded := s.offset + s.loaded
	cb := s.onEnd
	s.mu.Unlock()

	log.Infof("%s: stream ended after %d frames", s.key, loaded)
	if cb != nil {
		cb(s.gen)
	}
}

func (s *Session) release() {
	ctx, cancel := s.requestContext()
	defer cancel()
	if err := s.src.Close(ctx); err != nil {
		log.Debugf("%s: stream end: %v", s.key, err)
	}
}
