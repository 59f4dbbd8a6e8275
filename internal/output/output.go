// Package output drives the audio render callback on a device.
package output

import (
	"errors"
	"fmt"
	"time"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("output")

// ErrDeviceUnavailable is returned when the audio device cannot be opened.
// It is fatal at startup.
var ErrDeviceUnavailable = errors.New("output: audio device unavailable")

// RenderFunc fills out with the next stereo frames. It runs on the device's
// real-time path and must never block.
type RenderFunc func(out [][2]float64)

// Device connects a render callback to an audio sink.
type Device interface {
	// Start connects render. Starting a started device replaces the callback.
	Start(render RenderFunc) error
	// Stop disconnects the callback. The device stays open.
	Stop() error
	SampleRate() int
	Close() error
}

// Open returns the device named by kind ("speaker" or "null").
func Open(kind string, rate int, buffer time.Duration) (Device, error) {
	switch kind {
	case "", "speaker":
		return OpenSpeaker(rate, buffer)
	case "null":
		return NewNull(rate, frames(rate, buffer), true), nil
	}
	return nil, fmt.Errorf("%w: unknown device %q", ErrDeviceUnavailable, kind)
}

func frames(rate int, d time.Duration) int {
	n := int(time.Duration(rate) * d / time.Second)
	if n < 1 {
		n = 1
	}
	return n
}
