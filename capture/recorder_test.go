package capture

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"dictate/audio"
	"dictate/metrics"
)

func pcmFrame(n int, fill byte) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = fill
	}
	// keep sample values small so AGC-off comparisons stay byte-exact
	for i := 1; i < n; i += 2 {
		data[i] = 0
	}
	return data
}

func newTestRecorder(t *testing.T, frames ...[]byte) (*Recorder, *audio.FakeCapture) {
	t.Helper()
	ctx := audio.NewFakeContext(frames...)
	dev, err := ctx.NewCapture(nil, audio.CaptureConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatal(err)
	}
	r := New(dev, Config{
		Native:       audio.CaptureConfig{SampleRate: 16000, Channels: 1},
		DisableAGC:   true,
		CleanupDelay: 10 * time.Millisecond,
	})
	t.Cleanup(r.Close)
	return r, dev.(*audio.FakeCapture)
}

func TestRecorderThreeBuffers(t *testing.T) {
	f1 := pcmFrame(320, 10)
	f2 := pcmFrame(640, 20)
	f3 := pcmFrame(160, 30)
	r, _ := newTestRecorder(t, f1, f2, f3)

	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	got := r.Stop(false)

	want := append(append(append([]byte{}, f1...), f2...), f3...)
	if !bytes.Equal(got, want) {
		t.Fatalf("stop returned %d bytes, want %d in capture order", len(got), len(want))
	}
	if len(got)%2 != 0 {
		t.Fatal("odd byte count")
	}
}

func TestRecorderStopDiscard(t *testing.T) {
	r, _ := newTestRecorder(t, pcmFrame(320, 5))
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}
	if got := r.Stop(true); got != nil {
		t.Fatalf("discard returned %d bytes, want nil", len(got))
	}
}

func TestRecorderIncrementalDrain(t *testing.T) {
	f1 := pcmFrame(320, 7)
	f2 := pcmFrame(320, 9)
	r, dev := newTestRecorder(t, f1)

	if err := r.Start(); err != nil {
		t.Fatal(err)
	}
	if got := r.Drain(); !bytes.Equal(got, f1) {
		t.Fatalf("incremental drain mismatch: %d bytes", len(got))
	}
	if got := r.Drain(); len(got) != 0 {
		t.Fatalf("second drain returned %d bytes, want 0", len(got))
	}

	dev.Feed(f2)
	if got := r.Stop(false); !bytes.Equal(got, f2) {
		t.Fatalf("stop tail mismatch: %d bytes, want %d", len(got), len(f2))
	}
}

func TestRecorderStopJoinsInFlightWork(t *testing.T) {
	// A burst of frames larger than any single drain; Stop must not return
	// until every posted conversion landed.
	var frames [][]byte
	var total int
	for i := 0; i < 50; i++ {
		f := pcmFrame(640, byte(i+1))
		frames = append(frames, f)
		total += len(f)
	}
	r, _ := newTestRecorder(t, frames...)
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}
	if got := r.Stop(false); len(got) != total {
		t.Fatalf("tail = %d bytes, want %d (truncated recording)", len(got), total)
	}
}

func TestRecorderGenerationGuard(t *testing.T) {
	f1 := pcmFrame(320, 3)
	f2 := pcmFrame(320, 4)
	r, dev := newTestRecorder(t, f1)

	if err := r.Start(); err != nil {
		t.Fatal(err)
	}
	gen1 := r.Generation()
	r.Stop(false) // schedules deferred cleanup for gen1

	// New session starts before gen1 cleanup runs.
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}
	if r.Generation() == gen1 {
		t.Fatal("generation did not advance")
	}
	dev.Feed(f2)

	// Fire gen1's cleanup directly: it must no-op against the newer session.
	r.finalize(gen1)

	if got := r.Stop(false); len(got) < len(f2) {
		t.Fatalf("stale cleanup cleared generation-2 audio: %d bytes left", len(got))
	}
}

func TestRecorderStaleCallbackIgnored(t *testing.T) {
	r, dev := newTestRecorder(t)
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}
	r.Stop(false)

	// The fake still allows Feed after Start/Stop cycles when restarted;
	// simulate a late callback from the old generation.
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}
	dev.Feed(pcmFrame(320, 8))
	got := r.Stop(false)
	if len(got) != 320 {
		t.Fatalf("got %d bytes, want 320", len(got))
	}
}

func TestRecorderStartFailureReleasesRoute(t *testing.T) {
	ctx := audio.NewFakeContext()
	dev, _ := ctx.NewCapture(nil, audio.CaptureConfig{})
	fake := dev.(*audio.FakeCapture)
	fake.StartErr = audio.ErrEngineStart

	route := NewCoordinator(nil, nil, time.Millisecond)
	r := New(dev, Config{Route: route, CleanupDelay: time.Millisecond})
	defer r.Close()

	if err := r.Start(); !errors.Is(err, audio.ErrEngineStart) {
		t.Fatalf("Start = %v, want ErrEngineStart", err)
	}
	deadline := time.After(time.Second)
	for route.Configured() {
		select {
		case <-deadline:
			t.Fatal("route still configured after failed start")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestRecorderLevelEvents(t *testing.T) {
	levels := make(chan float64, 8)
	ctx := audio.NewFakeContext(pcmFrame(320, 40))
	dev, _ := ctx.NewCapture(nil, audio.CaptureConfig{})
	r := New(dev, Config{
		Native:       audio.CaptureConfig{SampleRate: 16000, Channels: 1},
		DisableAGC:   true,
		CleanupDelay: time.Millisecond,
		Events: Events{Level: func(rms float64) {
			select {
			case levels <- rms:
			default:
			}
		}},
	})
	defer r.Close()

	if err := r.Start(); err != nil {
		t.Fatal(err)
	}
	r.Stop(true)

	select {
	case l := <-levels:
		if l <= 0 {
			t.Fatalf("level = %v, want > 0", l)
		}
	default:
		t.Fatal("no level event observed")
	}
}

func TestRecorderDropMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	mx := metrics.New(reg)

	ctx := audio.NewFakeContext()
	dev, _ := ctx.NewCapture(nil, audio.CaptureConfig{SampleRate: 16000, Channels: 1})
	r := New(dev, Config{
		Native:       audio.CaptureConfig{SampleRate: 16000, Channels: 1},
		DisableAGC:   true,
		CleanupDelay: time.Millisecond,
		Metrics:      mx,
	})
	defer r.Close()

	if err := r.Start(); err != nil {
		t.Fatal(err)
	}

	// Stall the conversion worker so the job queue fills and the callback
	// starts dropping.
	release := make(chan struct{})
	if !r.sc.post(func() { <-release }) {
		t.Fatal("could not stall the serial context")
	}
	fake := dev.(*audio.FakeCapture)
	frame := pcmFrame(320, 11)
	for i := 0; i < jobQueueDepth+50; i++ {
		fake.Feed(frame)
	}
	close(release)

	dropped := r.DroppedFrames()
	if dropped == 0 {
		t.Fatal("expected dropped frames with a stalled conversion queue")
	}
	if got := testutil.ToFloat64(mx.DroppedFrames); got != float64(dropped) {
		t.Fatalf("dropped-frames metric = %v, want %v", got, dropped)
	}
	r.Stop(true)
}

func TestCoordinatorRefCounting(t *testing.T) {
	var configures, releases int
	c := NewCoordinator(
		func() error { configures++; return nil },
		func() { releases++ },
		5*time.Millisecond,
	)

	if err := c.Acquire(); err != nil {
		t.Fatal(err)
	}
	if err := c.Acquire(); err != nil {
		t.Fatal(err)
	}
	if configures != 1 {
		t.Fatalf("configure ran %d times, want 1 (idempotent)", configures)
	}

	c.Release()
	time.Sleep(20 * time.Millisecond)
	if releases != 0 {
		t.Fatal("released while a holder remained")
	}

	c.Release()
	time.Sleep(20 * time.Millisecond)
	if releases != 1 {
		t.Fatalf("release ran %d times, want 1", releases)
	}
	if c.Configured() {
		t.Fatal("still configured after final release")
	}
}

func TestCoordinatorReacquireCancelsRelease(t *testing.T) {
	var releases int
	c := NewCoordinator(nil, func() { releases++ }, 20*time.Millisecond)

	if err := c.Acquire(); err != nil {
		t.Fatal(err)
	}
	c.Release()

	// Re-acquire inside the deferral window: teardown must not happen.
	if err := c.Acquire(); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	if releases != 0 {
		t.Fatal("deferred release fired despite re-acquire")
	}
	if !c.Configured() {
		t.Fatal("route should still be configured")
	}
	c.Release()
}
