// Package decode turns stream packets into planar float samples and
// resamples them to the output rate.
package decode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownCodec is returned by New for unregistered codec names.
var ErrUnknownCodec = errors.New("decode: unknown codec")

// Decoder converts packets of one stream into planar samples, one slice per
// channel in [-1, 1]. Decoders keep state between packets and are not safe
// for concurrent use.
type Decoder interface {
	Decode(pkt []byte) ([][]float64, error)
	Channels() int
	// Reset drops carried state, e.g. after a seek.
	Reset()
}

// Factory creates a decoder for the given source rate and channel count.
type Factory func(rate, channels int) (Decoder, error)

var (
	codecsMu sync.RWMutex
	codecs   = map[string]Factory{}
)

// Register makes a codec available by name. Codecs with cgo dependencies
// register themselves from their own package.
func Register(name string, f Factory) {
	codecsMu.Lock()
	defer codecsMu.Unlock()
	codecs[name] = f
}

// New creates a decoder for a registered codec.
func New(name string, rate, channels int) (Decoder, error) {
	codecsMu.RLock()
	f, ok := codecs[name]
	codecsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q (have %v)", ErrUnknownCodec, name, Codecs())
	}
	return f(rate, channels)
}

// Codecs lists the registered codec names.
func Codecs() []string {
	codecsMu.RLock()
	defer codecsMu.RUnlock()
	out := make([]string, 0, len(codecs))
	for name := range codecs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func init() {
	Register("pcm16", func(_, channels int) (Decoder, error) { return NewPCM16(channels), nil })
}

// PCM16 decodes interleaved signed 16 bit little endian PCM. A frame split
// across two packets is carried over to the next call.
type PCM16 struct {
	channels int
	rem      []byte
}

func NewPCM16(channels int) *PCM16 {
	if channels < 1 {
		channels = 2
	}
	return &PCM16{channels: channels}
}

func (d *PCM16) Channels() int { return d.channels }
func (d *PCM16) Reset()        { d.rem = d.rem[:0] }

func (d *PCM16) Decode(pkt []byte) ([][]float64, error) {
	data := pkt
	if len(d.rem) > 0 {
		data = append(d.rem, pkt...)
	}
	frameSize := 2 * d.channels
	frames := len(data) / frameSize

	out := make([][]float64, d.channels)
	for ch := range out {
		out[ch] = make([]float64, frames)
	}
	for i := 0; i < frames; i++ {
		for ch := 0; ch < d.channels; ch++ {
			v := int16(binary.LittleEndian.Uint16(data[(i*d.channels+ch)*2:]))
			out[ch][i] = float64(v) / 32768
		}
	}
	d.rem = append(d.rem[:0], data[frames*frameSize:]...)
	return out, nil
}

// Deinterleave splits interleaved int16 samples into planar floats.
func Deinterleave(pcm []int16, channels int) [][]float64 {
	frames := len(pcm) / channels
	out := make([][]float64, channels)
	for ch := range out {
		out[ch] = make([]float64, frames)
		for i := 0; i < frames; i++ {
			out[ch][i] = float64(pcm[i*channels+ch]) / 32768
		}
	}
	return out
}
