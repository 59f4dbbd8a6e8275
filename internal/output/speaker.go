package output

import (
	"fmt"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
)

// Speaker plays through the system audio device via beep's speaker.
// The speaker package is process global, so only one Speaker may be open.
type Speaker struct {
	rate int

	mu      sync.Mutex
	playing bool
}

// OpenSpeaker initializes the system device with a buffer of the given
// length.
func OpenSpeaker(rate int, buffer time.Duration) (*Speaker, error) {
	sr := beep.SampleRate(rate)
	if err := speaker.Init(sr, sr.N(buffer)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	log.Infof("speaker open at %d Hz, buffer %s", rate, buffer)
	return &Speaker{rate: rate}, nil
}

func (s *Speaker) SampleRate() int { return s.rate }

func (s *Speaker) Start(render RenderFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playing {
		speaker.Clear()
	}
	speaker.Play(beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		render(samples)
		return len(samples), true
	}))
	s.playing = true
	return nil
}

// Stop must not be called from inside the render callback: the speaker
// holds its lock while rendering.
func (s *Speaker) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.playing {
		return nil
	}
	speaker.Clear()
	s.playing = false
	return nil
}

func (s *Speaker) Close() error {
	err := s.Stop()
	speaker.Close()
	return err
}
