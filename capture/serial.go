package capture

import "sync"

// jobQueueDepth bounds how much conversion work the real-time callback can
// have in flight. When the queue is full the callback drops the frame
// rather than block the device thread.
const jobQueueDepth = 256

// serialContext is a single worker goroutine that applies jobs in
// submission order. It is the one execution context allowed to touch the
// recorder's buffer, converter and session flags; the capture callback
// only posts immutable data into it.
type serialContext struct {
	mu     sync.RWMutex
	closed bool
	jobs   chan func()
	done   chan struct{}
}

func newSerialContext() *serialContext {
	s := &serialContext{
		jobs: make(chan func(), jobQueueDepth),
		done: make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		for job := range s.jobs {
			job()
		}
	}()
	return s
}

// post enqueues a job without blocking. Returns false when the queue is
// full (the job is dropped; callers on the real-time thread must tolerate
// that) or the context is closed.
func (s *serialContext) post(job func()) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.jobs <- job:
		return true
	default:
		return false
	}
}

// run enqueues a job and waits for it to finish. Because the worker is
// FIFO, returning also means every previously posted job has completed —
// this is the join that keeps Stop from truncating the recording's tail.
// After close it is a no-op; a stale timer must not resurrect the worker.
func (s *serialContext) run(job func()) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return
	}
	ch := make(chan struct{})
	s.jobs <- func() {
		job()
		close(ch)
	}
	s.mu.RUnlock()
	<-ch
}

func (s *serialContext) close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.jobs)
	}
	s.mu.Unlock()
	<-s.done
}
