package decode

import (
	"fmt"
	"math"

	"github.com/gopxl/beep/v2"
)

// Resampler converts planar samples from one rate to another. It keeps
// filter state across calls, so one instance serves one stream.
type Resampler interface {
	Process(in [][]float64) [][]float64
	// Flush returns the samples still held back for lookahead.
	Flush() [][]float64
	Reset()
}

// NewResampler returns a passthrough when the rates match, and a
// beep.Resample based resampler otherwise. quality is beep's window size
// (1..64); channels must be 1 or 2.
func NewResampler(quality, from, to, channels int) (Resampler, error) {
	if from <= 0 || to <= 0 {
		return nil, fmt.Errorf("decode: bad sample rates %d -> %d", from, to)
	}
	if channels < 1 || channels > 2 {
		return nil, fmt.Errorf("decode: resampling supports 1 or 2 channels, not %d", channels)
	}
	if from == to {
		return passthrough{}, nil
	}
	if quality < 1 || quality > 64 {
		return nil, fmt.Errorf("decode: resample quality %d out of range 1..64", quality)
	}
	r := &beepResampler{
		quality:  quality,
		from:     beep.SampleRate(from),
		to:       beep.SampleRate(to),
		ratio:    float64(from) / float64(to),
		channels: channels,
	}
	r.Reset()
	return r, nil
}

type passthrough struct{}

func (passthrough) Process(in [][]float64) [][]float64 { return in }
func (passthrough) Flush() [][]float64                 { return nil }
func (passthrough) Reset()                             {}

// beep reads its source in blocks of this many frames.
const beepBlock = 512

// feeder is the beep.Streamer the resampler pulls from. It never reports a
// short read while live; beepResampler only asks for output that the queued
// input can fully cover.
type feeder struct {
	q   [][2]float64
	eof bool
}

func (f *feeder) Stream(samples [][2]float64) (int, bool) {
	n := copy(samples, f.q)
	f.q = f.q[n:]
	if n == 0 && f.eof {
		return 0, false
	}
	return n, true
}

func (f *feeder) Err() error { return nil }

type beepResampler struct {
	quality  int
	from, to beep.SampleRate
	ratio    float64
	channels int

	feed     *feeder
	rs       *beep.Resampler
	fed      int // input frames queued so far
	produced int // output frames returned so far
}

func (r *beepResampler) Reset() {
	r.feed = &feeder{}
	r.rs = beep.Resample(r.quality, r.from, r.to, r.feed)
	r.fed, r.produced = 0, 0
}

// lookahead is how many input frames past an output position beep may read.
func (r *beepResampler) lookahead() int { return 2*beepBlock + 2*r.quality + 1 }

func (r *beepResampler) Process(in [][]float64) [][]float64 {
	if len(in) > 0 {
		for i, v := range in[0] {
			s := [2]float64{v, v}
			if r.channels == 2 {
				s[1] = in[1][i]
			}
			r.feed.q = append(r.feed.q, s)
		}
		r.fed += len(in[0])
	}
	ready := int(math.Floor(float64(r.fed-r.lookahead())/r.ratio)) - r.produced
	if ready <= 0 {
		return r.planar(nil)
	}
	return r.pull(ready)
}

func (r *beepResampler) Flush() [][]float64 {
	r.feed.eof = true
	want := int(math.Ceil(float64(r.fed)/r.ratio)) - r.produced
	if want <= 0 {
		return r.planar(nil)
	}
	return r.pull(want)
}

func (r *beepResampler) pull(n int) [][]float64 {
	buf := make([][2]float64, n)
	got := 0
	for got < n {
		k, ok := r.rs.Stream(buf[got:])
		got += k
		if !ok || k == 0 {
			break
		}
	}
	r.produced += got
	return r.planar(buf[:got])
}

func (r *beepResampler) planar(buf [][2]float64) [][]float64 {
	out := make([][]float64, r.channels)
	for ch := range out {
		out[ch] = make([]float64, len(buf))
		for i, s := range buf {
			out[ch][i] = s[ch]
		}
	}
	return out
}
