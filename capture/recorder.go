package capture

import (
	"sync/atomic"
	"time"

	"dictate/audio"
	"dictate/log"
	"dictate/metrics"
	"dictate/pcm"
)

// Events are the recorder's outward notifications. Level fires on the
// real-time callback and must stay cheap; Silence fires on the monitor
// goroutine.
type Events struct {
	Level   func(rms float64)
	Silence func(ev SilenceEvent)
}

// Config tunes one recorder.
type Config struct {
	// Native is the format requested from the device. The recorder
	// converts it to the canonical format itself.
	Native audio.CaptureConfig

	// DisableAGC turns the adaptive gain stage off.
	DisableAGC bool

	// Monitor enables VAD-driven silence warnings.
	Monitor bool

	// AutoStop arms the silence monitor's auto-close event.
	AutoStop bool

	// Route is the shared hardware route coordinator. Optional; a private
	// one is created when nil.
	Route *Coordinator

	// CleanupDelay is how long a stopped session's residual state lingers
	// before the deferred cleanup runs. Zero means the default.
	CleanupDelay time.Duration

	// Metrics is optional Prometheus instrumentation for capture-side
	// counters.
	Metrics *metrics.Metrics

	Events Events
}

// Recorder is one microphone capture pipeline: real-time callback →
// serial conversion context → canonical PCM buffer. A recorder serves
// successive capture sessions; the generation counter tells them apart so
// a stale deferred cleanup can never corrupt a newer session.
type Recorder struct {
	dev   audio.CaptureDevice
	cfg   Config
	route *Coordinator
	sc    *serialContext

	gen     atomic.Uint64
	dropped atomic.Uint64

	// owned by the serial context
	active bool
	conv   *pcm.Converter
	gain   *pcm.Gain
	buf    Buffer

	vad         *vadProcessor
	monitorStop chan struct{}
}

func New(dev audio.CaptureDevice, cfg Config) *Recorder {
	if cfg.Native.SampleRate == 0 {
		cfg.Native.SampleRate = pcm.SampleRate
	}
	if cfg.Native.Channels == 0 {
		cfg.Native.Channels = 1
	}
	if cfg.CleanupDelay <= 0 {
		cfg.CleanupDelay = DefaultReleaseDelay
	}
	route := cfg.Route
	if route == nil {
		route = NewCoordinator(nil, nil, 0)
	}
	return &Recorder{
		dev:   dev,
		cfg:   cfg,
		route: route,
		sc:    newSerialContext(),
	}
}

// Start begins a new capture session. It blocks until the hardware engine
// reports ready; permission and engine failures come back as the audio
// package's sentinel errors.
func (r *Recorder) Start() error {
	gen := r.gen.Add(1)

	if err := r.route.Acquire(); err != nil {
		return err
	}

	r.sc.run(func() {
		r.active = true
		r.conv = pcm.NewConverter(int(r.cfg.Native.SampleRate), int(r.cfg.Native.Channels))
		r.gain = pcm.NewGain()
		r.buf.Drain()
	})

	r.dev.SetCallback(func(data []byte, _ uint32) {
		if r.gen.Load() != gen || len(data) == 0 {
			return
		}
		if r.cfg.Events.Level != nil {
			r.cfg.Events.Level(pcm.Level(data))
		}
		// Copy out: the backend reuses its buffer after we return. The
		// conversion itself never runs here.
		cp := make([]byte, len(data))
		copy(cp, data)
		if !r.sc.post(func() { r.ingest(gen, cp) }) {
			r.dropped.Add(1)
			if r.cfg.Metrics != nil {
				r.cfg.Metrics.DroppedFrames.Inc()
			}
		}
	})

	if err := r.dev.Start(); err != nil {
		r.dev.ClearCallback()
		r.sc.run(func() { r.active = false })
		r.route.Release()
		return err
	}

	if r.cfg.Monitor {
		r.startMonitor(gen)
	}
	return nil
}

// ingest runs on the serial context only.
func (r *Recorder) ingest(gen uint64, data []byte) {
	if !r.active || r.gen.Load() != gen {
		return
	}
	out := r.conv.Convert(data)
	if len(out) == 0 {
		return
	}
	if !r.cfg.DisableAGC {
		out = r.gain.Process(out)
	}
	r.buf.Append(out)
	if r.vad != nil {
		r.vad.Process(out)
	}
}

// Stop halts capture and returns the canonical bytes not yet drained by a
// consumer, or nil when discard is set. It joins all in-flight conversion
// work before the final drain; returning earlier would silently truncate
// the recording's tail. Cleanup of residual session state is deferred and
// generation-guarded.
func (r *Recorder) Stop(discard bool) []byte {
	gen := r.gen.Load()

	r.stopMonitor()
	r.dev.Stop()
	r.dev.ClearCallback()

	var tail []byte
	r.sc.run(func() {
		r.active = false
		tail = r.buf.Drain()
	})

	r.route.Release()
	time.AfterFunc(r.cfg.CleanupDelay, func() { r.finalize(gen) })

	if discard {
		return nil
	}
	return tail
}

// finalize is the deferred post-stop cleanup. A generation mismatch means
// a newer session superseded this one while the timer was pending; the
// cleanup then no-ops instead of clearing state it no longer owns.
func (r *Recorder) finalize(gen uint64) {
	if r.gen.Load() != gen {
		return
	}
	r.sc.run(func() {
		if r.gen.Load() != gen {
			return
		}
		r.buf.Drain()
		r.conv = nil
		r.gain = nil
	})
}

// Drain returns everything accumulated so far and leaves the buffer
// empty. Safe to call mid-session for progressive upload.
func (r *Recorder) Drain() []byte {
	var out []byte
	r.sc.run(func() { out = r.buf.Drain() })
	return out
}

// Buffered reports the bytes currently accumulated.
func (r *Recorder) Buffered() int {
	var n int
	r.sc.run(func() { n = r.buf.Len() })
	return n
}

// Generation returns the current session generation.
func (r *Recorder) Generation() uint64 {
	return r.gen.Load()
}

// DroppedFrames counts hardware buffers discarded because the conversion
// queue was full.
func (r *Recorder) DroppedFrames() uint64 {
	return r.dropped.Load()
}

// Close shuts the serial context down. The recorder is unusable afterward.
func (r *Recorder) Close() {
	r.stopMonitor()
	r.dev.ClearCallback()
	r.sc.close()
}

func (r *Recorder) startMonitor(gen uint64) {
	vp, err := newVADProcessor()
	if err != nil {
		log.Warnf("vad init failed, silence monitoring disabled: %v", err)
		return
	}
	r.sc.run(func() { r.vad = vp })

	stop := make(chan struct{})
	r.monitorStop = stop
	mon := newSilenceMonitor(r.cfg.AutoStop)

	go func() {
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if r.gen.Load() != gen {
					return
				}
				ev := mon.Tick(vp.HasSpeechTick())
				if ev != SilenceNone && r.cfg.Events.Silence != nil {
					r.cfg.Events.Silence(ev)
				}
			}
		}
	}()
}

func (r *Recorder) stopMonitor() {
	if r.monitorStop != nil {
		close(r.monitorStop)
		r.monitorStop = nil
	}
	r.sc.run(func() { r.vad = nil })
}
