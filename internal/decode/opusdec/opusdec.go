// Package opusdec registers the "opus" codec with package decode.
//
// A stream packet carries one or more opus frames, each prefixed with its
// length as a big endian uint16.
package opusdec

import (
	"encoding/binary"
	"fmt"

	"github.com/hraban/opus"

	"github.com/bytesnake/hex/internal/decode"
)

// maxFrame is 120 ms at 48 kHz, the longest opus frame.
const maxFrame = 5760

func init() {
	decode.Register("opus", func(rate, channels int) (decode.Decoder, error) {
		return New(rate, channels)
	})
}

type Decoder struct {
	rate     int
	channels int
	dec      *opus.Decoder
	pcm      []int16
	rem      []byte
}

func New(rate, channels int) (*Decoder, error) {
	dec, err := opus.NewDecoder(rate, channels)
	if err != nil {
		return nil, fmt.Errorf("opus decoder: %w", err)
	}
	return &Decoder{
		rate:     rate,
		channels: channels,
		dec:      dec,
		pcm:      make([]int16, maxFrame*channels),
	}, nil
}

func (d *Decoder) Channels() int { return d.channels }

func (d *Decoder) Reset() {
	d.rem = d.rem[:0]
	if dec, err := opus.NewDecoder(d.rate, d.channels); err == nil {
		d.dec = dec
	}
}

// Decode decodes every complete frame in pkt. A frame cut at the packet
// boundary is completed by the next packet.
func (d *Decoder) Decode(pkt []byte) ([][]float64, error) {
	data := append(d.rem, pkt...)
	var all []int16
	for len(data) >= 2 {
		size := int(binary.BigEndian.Uint16(data))
		if len(data) < 2+size {
			break
		}
		n, err := d.dec.Decode(data[2:2+size], d.pcm)
		if err != nil {
			d.rem = d.rem[:0]
			return nil, fmt.Errorf("opus frame: %w", err)
		}
		all = append(all, d.pcm[:n*d.channels]...)
		data = data[2+size:]
	}
	d.rem = append(d.rem[:0], data...)
	return decode.Deinterleave(all, d.channels), nil
}
