package audio

import (
	"sync"
	"sync/atomic"
)

// FakeContext is a scriptable capture backend for tests. Frames queued on
// the context are delivered synchronously when the capture starts; tests
// can also inject frames by hand while the capture runs.
type FakeContext struct {
	frames [][]byte
}

func NewFakeContext(frames ...[]byte) *FakeContext {
	return &FakeContext{frames: frames}
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake", Name: "fake mic"}}, nil
}

func (f *FakeContext) Close() {}

func (f *FakeContext) NewCapture(_ *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	return &FakeCapture{frames: f.frames}, nil
}

type FakeCapture struct {
	frames [][]byte

	// StartErr, when set, is returned from Start to exercise failure paths.
	StartErr error

	mu       sync.Mutex
	callback DataCallback
	started  atomic.Bool
	starts   int
	stops    int
}

func (f *FakeCapture) Start() error {
	if f.StartErr != nil {
		return f.StartErr
	}
	f.started.Store(true)
	f.mu.Lock()
	f.starts++
	cb := f.callback
	frames := f.frames
	f.mu.Unlock()

	if cb != nil {
		for _, data := range frames {
			cb(data, uint32(len(data)/2))
		}
	}
	return nil
}

// Feed injects one raw buffer as if the device produced it. No-op when the
// capture is stopped, mirroring real backends.
func (f *FakeCapture) Feed(data []byte) {
	if !f.started.Load() {
		return
	}
	f.mu.Lock()
	cb := f.callback
	f.mu.Unlock()
	if cb != nil {
		cb(data, uint32(len(data)/2))
	}
}

func (f *FakeCapture) Stop() {
	f.started.Store(false)
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
}

func (f *FakeCapture) Close() {
	f.Stop()
}

func (f *FakeCapture) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.callback = cb
	f.mu.Unlock()
}

func (f *FakeCapture) ClearCallback() {
	f.mu.Lock()
	f.callback = nil
	f.mu.Unlock()
}

func (f *FakeCapture) DeviceName() string { return "fake mic" }

// Starts and Stops report lifecycle call counts for assertions.
func (f *FakeCapture) Starts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

func (f *FakeCapture) Stops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}
