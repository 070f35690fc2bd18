// Package audio wraps platform microphone capture behind a small
// interface pair. Backends deliver raw device-format frames on a
// real-time callback; format conversion happens elsewhere, off that
// thread.
package audio

import (
	"errors"
	"strings"
)

var (
	// ErrPermissionDenied means the user has not granted microphone
	// access. Terminal: the user must grant and retry.
	ErrPermissionDenied = errors.New("audio: microphone permission denied")

	// ErrEngineStart means the capture engine could not start.
	ErrEngineStart = errors.New("audio: capture engine start failed")
)

var btKeywords = []string{
	"airpods", "beats", "bose", "wh-1000", "wf-1000",
	"sony wh-", "sony wf-",
	"jabra", "galaxy buds", "pixel buds", "powerbeats",
	"jbl ", "sennheiser momentum", "plantronics",
	"tozo", "anker soundcore", "skullcandy",
	"bluetooth", " bt ", " bt)", " bt]",
}

// IsBluetooth guesses from the device name whether a microphone is a
// Bluetooth headset, which typically captures at phone-call quality.
func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range btKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// DataCallback receives one hardware buffer of raw s16le frames in the
// capture format. It runs on a real-time-priority thread and must complete
// in bounded, allocation-light time: post the data somewhere and return.
type DataCallback func(data []byte, frameCount uint32)

// CaptureConfig is the native format requested from the device. The
// converter downstream turns it into the canonical format.
type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
	DeviceName() string
}
