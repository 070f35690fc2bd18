package capture

import (
	"sync"
	"time"
)

// DefaultReleaseDelay keeps the hardware route configured briefly after
// the last consumer stops, so back-to-back recordings do not churn the
// device.
const DefaultReleaseDelay = 500 * time.Millisecond

// Coordinator owns the process-wide audio route. Multiple independent
// features may want the microphone at different times, so acquisition is
// reference-counted and idempotent rather than boolean, and the final
// release is deferred.
type Coordinator struct {
	configure func() error
	release   func()
	delay     time.Duration

	mu         sync.Mutex
	refs       int
	configured bool
	timer      *time.Timer
}

// NewCoordinator wraps the platform route configure/release hooks. Either
// hook may be nil.
func NewCoordinator(configure func() error, release func(), delay time.Duration) *Coordinator {
	if delay <= 0 {
		delay = DefaultReleaseDelay
	}
	return &Coordinator{configure: configure, release: release, delay: delay}
}

// Acquire configures the route if it is not already configured and takes a
// reference. A pending deferred release is cancelled, so a recording that
// starts right after another one ends reuses the live route.
func (c *Coordinator) Acquire() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if !c.configured {
		if c.configure != nil {
			if err := c.configure(); err != nil {
				return err
			}
		}
		c.configured = true
	}
	c.refs++
	return nil
}

// Release drops one reference. When the count reaches zero the route is
// torn down after the release delay, unless someone re-acquires first.
func (c *Coordinator) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.refs == 0 {
		return
	}
	c.refs--
	if c.refs > 0 {
		return
	}

	c.timer = time.AfterFunc(c.delay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.refs > 0 || !c.configured {
			return
		}
		c.configured = false
		c.timer = nil
		if c.release != nil {
			c.release()
		}
	})
}

// Configured reports whether the route is currently live.
func (c *Coordinator) Configured() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.configured
}
