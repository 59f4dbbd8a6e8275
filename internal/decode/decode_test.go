package decode

import (
	"encoding/binary"
	"errors"
	"testing"
)

func pcmBytes(samples ...int16) []byte {
	b := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(b[2*i:], uint16(s))
	}
	return b
}

func TestPCM16SplitFrame(t *testing.T) {
	d := NewPCM16(2)
	all := pcmBytes(100, -100, 200, -200, 300, -300)

	a, _ := d.Decode(all[:5]) // one frame plus one stray byte
	b, _ := d.Decode(all[5:])
	if len(a[0]) != 1 || len(b[0]) != 2 {
		t.Fatalf("frames %d + %d", len(a[0]), len(b[0]))
	}
	if b[0][0] != 200.0/32768 || b[1][1] != -300.0/32768 {
		t.Fatalf("carried frame decoded wrong: %v", b)
	}
}

func TestPCM16Reset(t *testing.T) {
	d := NewPCM16(2)
	d.Decode([]byte{1, 2, 3})
	d.Reset()
	out, _ := d.Decode(pcmBytes(7, 8))
	if len(out[0]) != 1 || out[0][0] != 7.0/32768 {
		t.Fatalf("stale bytes survived Reset: %v", out)
	}
}

func TestNewUnknownCodec(t *testing.T) {
	if _, err := New("flac", 48000, 2); !errors.Is(err, ErrUnknownCodec) {
		t.Fatalf("err = %v", err)
	}
	if d, err := New("pcm16", 48000, 2); err != nil || d.Channels() != 2 {
		t.Fatalf("pcm16: %v", err)
	}
}

func TestPassthroughWhenRatesMatch(t *testing.T) {
	r, err := NewResampler(4, 48000, 48000, 2)
	if err != nil {
		t.Fatal(err)
	}
	in := [][]float64{{1, 2}, {3, 4}}
	if out := r.Process(in); &out[0][0] != &in[0][0] {
		t.Fatal("equal rates should not copy")
	}
}

func TestResamplerBadArgs(t *testing.T) {
	if _, err := NewResampler(0, 48000, 44100, 2); err == nil {
		t.Fatal("quality 0 accepted")
	}
	if _, err := NewResampler(4, 48000, 44100, 6); err == nil {
		t.Fatal("6 channels accepted")
	}
}

func TestResamplerFrameCount(t *testing.T) {
	r, err := NewResampler(4, 48000, 44100, 2)
	if err != nil {
		t.Fatal(err)
	}
	total := 0
	chunk := [][]float64{make([]float64, 4800), make([]float64, 4800)}
	for i := 0; i < 10; i++ {
		out := r.Process(chunk)
		if len(out) != 2 || len(out[0]) != len(out[1]) {
			t.Fatal("channels out of step")
		}
		total += len(out[0])
	}
	if total == 0 {
		t.Fatal("no output before flush")
	}
	total += len(r.Flush()[0])
	if total < 44100-2*beepBlock || total > 44101 {
		t.Fatalf("resampled 48000 frames to %d", total)
	}
}
