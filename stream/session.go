package stream

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"dictate/log"
	"dictate/pcm"
	"dictate/record"
	"dictate/wire"
)

const (
	defaultChunkDur     = 200 * time.Millisecond
	defaultBacklogDepth = 128
)

// Session is one streaming update attempt against one record. Feed, Done
// and Cancel must be called from a single goroutine; the session runs its
// own sender and receiver underneath.
type Session struct {
	id          string
	kind        record.Kind
	keepLocalID string
	events      Events
	mx          *metricsRef

	chunkBytes int
	backlog    BacklogPolicy

	ws        conn
	state     atomic.Int32
	startedAt time.Time
	connected chan struct{} // closed when the transport is ready or failed
	sendDone  chan struct{}
	recvDone  chan struct{}

	audioCh chan []byte

	feedMu  sync.Mutex
	feedBuf []byte

	mu       sync.Mutex
	err      error
	errOnce  sync.Once
	closing  bool
	finished bool
	hint     *wire.ASRHint
	rec      record.Record
	stats    stats

	endOnce sync.Once
}

type stats struct {
	connectDur    time.Duration
	sentChunks    int
	sentBytes     uint64
	droppedChunks uint64
	recvMessages  int
	recvASR       int
	finalizeWait  time.Duration
	sessionDur    time.Duration
}

// Stats is the per-session uplink/downlink accounting exposed on the
// result.
type Stats struct {
	ConnectMs     float64
	SentChunks    int
	SentKB        float64
	AudioSeconds  float64
	DroppedChunks uint64
	RecvMessages  int
	RecvASR       int
	FinalizeMs    float64
	TotalMs       float64
}

// SessionResult is the terminal outcome. Record is set only on Completed;
// Transcript is the last transcription text observed, if any.
type SessionResult struct {
	State      State
	Record     record.Record
	Transcript string
	Stats      Stats
}

// New validates the target and credential, then connects in the
// background. Validation failures surface here, before any network
// activity; transport failures surface from Done or Cancel.
func New(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.Credential == nil {
		return nil, ErrMissingCredential
	}
	cred, err := cfg.Credential.CurrentCredential()
	if err != nil {
		return nil, err
	}
	if cred == "" {
		return nil, ErrMissingCredential
	}
	endpoint, err := Endpoint(cfg.BaseURL, cfg.Kind, cfg.RecordID, cred)
	if err != nil {
		return nil, err
	}

	chunkBytes := cfg.ChunkBytes
	if chunkBytes <= 0 {
		chunkBytes = pcm.ChunkBytes(defaultChunkDur)
	}
	depth := cfg.BacklogDepth
	if depth <= 0 {
		depth = defaultBacklogDepth
	}

	s := &Session{
		id:          uuid.NewString(),
		kind:        cfg.Kind,
		keepLocalID: cfg.KeepLocalID,
		events:      cfg.Events,
		mx:          newMetricsRef(cfg.Metrics),
		chunkBytes:  chunkBytes,
		backlog:     cfg.Backlog,
		startedAt:   time.Now(),
		connected:   make(chan struct{}),
		sendDone:    make(chan struct{}),
		recvDone:    make(chan struct{}),
		audioCh:     make(chan []byte, depth),
	}
	s.mx.sessionStarted()
	log.Debugf("session %s: dialing %s for %s %s", s.id, cfg.BaseURL, cfg.Kind.Name, cfg.RecordID)

	go s.connect(ctx, endpoint)
	return s, nil
}

// ID is the client-side session identifier, used in logs.
func (s *Session) ID() string { return s.id }

// State returns the session's current lifecycle position.
func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) connect(ctx context.Context, endpoint string) {
	connectStart := time.Now()
	ws, err := dialWS(ctx, endpoint)
	s.mu.Lock()
	s.stats.connectDur = time.Since(connectStart)
	s.mu.Unlock()

	if err != nil {
		s.setErr(fmt.Errorf("stream: connect: %w", err))
		s.transition(Failed)
		close(s.sendDone)
		close(s.recvDone)
		close(s.connected)
		return
	}

	s.ws = ws
	s.transition(Connected)

	// The header frame must be the first frame on the wire; it goes out
	// before the sender goroutine exists, so no audio can overtake it.
	if err := ws.SendBinary(wire.CanonicalWAVHeader()); err != nil {
		s.setErr(fmt.Errorf("stream: send header: %w", err))
		s.transition(Failed)
		ws.Close()
		close(s.sendDone)
		close(s.recvDone)
		close(s.connected)
		return
	}
	s.transition(Streaming)
	close(s.connected)
	go s.runSender()
	go s.runReceiver()
}

// Feed accepts canonical PCM and re-chunks it for the uplink. Under
// BacklogBlock a slow uplink makes Feed block; under BacklogDropOldest the
// oldest queued chunk is discarded instead. After a failure or a finished
// session, Feed quietly drops input.
func (s *Session) Feed(pcmBytes []byte) {
	s.mu.Lock()
	dead := s.err != nil || s.finished
	s.mu.Unlock()
	if dead || s.State().Terminal() {
		return
	}

	s.feedMu.Lock()
	s.feedBuf = append(s.feedBuf, pcmBytes...)
	var chunks [][]byte
	for len(s.feedBuf) >= s.chunkBytes {
		chunk := make([]byte, s.chunkBytes)
		copy(chunk, s.feedBuf[:s.chunkBytes])
		s.feedBuf = s.feedBuf[s.chunkBytes:]
		chunks = append(chunks, chunk)
	}
	s.feedMu.Unlock()

	for _, chunk := range chunks {
		s.enqueue(chunk)
	}
}

func (s *Session) enqueue(chunk []byte) {
	if s.backlog == BacklogDropOldest {
		for {
			select {
			case s.audioCh <- chunk:
				return
			default:
			}
			select {
			case <-s.audioCh:
				s.mu.Lock()
				s.stats.droppedChunks++
				s.mu.Unlock()
			default:
			}
		}
	}
	s.audioCh <- chunk
}

// Done flushes remaining audio, sends the end-of-audio control message
// with the last transcription as a hint, and blocks until the server
// delivers a terminal event. The returned error is non-nil exactly when
// the result state is Failed.
func (s *Session) Done() (SessionResult, error) {
	if !s.beginFinish() {
		r, _ := s.finishResult()
		return r, ErrSessionDone
	}
	<-s.connected

	if s.ws == nil {
		// Dial failed; sender and receiver never started.
		s.discardPending()
		return s.finishResult()
	}

	s.flushTail()
	close(s.audioCh)
	<-s.sendDone

	finalizeStart := time.Now()
	s.transition(AwaitingResult)

	s.mu.Lock()
	hint := s.hint
	sendErr := s.err
	s.mu.Unlock()
	if sendErr == nil {
		if err := s.ws.SendText(wire.DoneMessage(hint)); err != nil {
			s.setErr(fmt.Errorf("stream: send done: %w", err))
			s.transition(Failed)
			s.markClosing()
			s.ws.Close()
		}
	}

	<-s.recvDone
	s.mu.Lock()
	s.stats.finalizeWait = time.Since(finalizeStart)
	s.mu.Unlock()

	s.markClosing()
	s.ws.Close()
	return s.finishResult()
}

// Cancel ends the session client-side immediately. The cancel control
// message is send-and-forget: the server's acknowledgement is not waited
// for, since it may be slow or unreachable and the caller must not hang.
func (s *Session) Cancel() SessionResult {
	if !s.beginFinish() {
		r, _ := s.finishResult()
		return r
	}
	<-s.connected
	s.transition(Cancelled)
	s.markClosing()
	if s.ws != nil {
		_ = s.ws.SendText(wire.CancelMessage())
		s.ws.Close()
	}

	// Retire the sender; a second consumer keeps the close from stranding
	// queued chunks if the sender already bailed on a send error.
	go func() {
		for range s.audioCh {
		}
	}()
	s.discardPending()
	close(s.audioCh)
	<-s.sendDone
	<-s.recvDone
	r, _ := s.finishResult()
	return r
}

// flushTail pushes the sub-chunk remainder of the feed buffer to the
// sender. The queue may be full with nobody draining it if the sender
// already died on a send error, so the enqueue races against sendDone
// instead of blocking; a dead sender was never going to deliver the tail
// anyway.
func (s *Session) flushTail() {
	s.feedMu.Lock()
	tail := s.feedBuf
	s.feedBuf = nil
	s.feedMu.Unlock()
	if len(tail) == 0 {
		return
	}
	select {
	case s.audioCh <- tail:
	case <-s.sendDone:
	}
}

func (s *Session) runSender() {
	defer close(s.sendDone)
	for chunk := range s.audioCh {
		if err := s.ws.SendBinary(chunk); err != nil {
			s.setErr(fmt.Errorf("stream: send audio: %w", err))
			return
		}
		s.mu.Lock()
		s.stats.sentChunks++
		s.stats.sentBytes += uint64(len(chunk))
		s.mu.Unlock()
		s.mx.chunkSent(len(chunk))
	}
}

func (s *Session) runReceiver() {
	defer close(s.recvDone)
	for {
		data, err := s.ws.Recv()
		if err != nil {
			s.mu.Lock()
			closing := s.closing
			s.mu.Unlock()
			if closing {
				return
			}
			s.setErr(fmt.Errorf("stream: receive: %w", err))
			s.transition(Failed)
			return
		}

		ev, err := wire.Decode(data, s.kind.Name)
		if err != nil {
			s.mx.decodeError()
			s.setErr(err)
			s.transition(Failed)
			return
		}

		s.mu.Lock()
		s.stats.recvMessages++
		s.mu.Unlock()
		s.mx.eventReceived(wire.TypeOf(ev))

		switch ev := ev.(type) {
		case wire.ASRResult:
			s.mu.Lock()
			s.stats.recvASR++
			s.hint = &wire.ASRHint{Text: ev.Text, IsFinal: ev.IsFinal}
			s.mu.Unlock()
			if s.events.Transcript != nil {
				s.events.Transcript(ev.Text, ev.IsFinal)
			}

		case wire.Processing:
			if s.events.Processing != nil {
				s.events.Processing(ev.Message)
			}

		case wire.UpdateResult:
			rec, err := s.kind.Reconcile(ev.Record, s.keepLocalID)
			if err != nil {
				s.setErr(err)
				s.transition(Failed)
				return
			}
			s.mu.Lock()
			s.rec = rec
			s.mu.Unlock()
			s.transition(Completed)
			return

		case wire.Cancelled:
			s.transition(Cancelled)
			return

		case wire.ErrorEvent:
			if ev.HasCode {
				s.setErr(fmt.Errorf("stream: server error %d: %s", ev.Code, ev.Message))
			} else {
				s.setErr(fmt.Errorf("stream: server error: %s", ev.Message))
			}
			s.transition(Failed)
			return
		}
	}
}

// transition advances the state machine. Terminal states are sticky: a
// racing failure cannot overwrite an already-delivered outcome.
func (s *Session) transition(to State) {
	for {
		cur := State(s.state.Load())
		if cur.Terminal() {
			return
		}
		if s.state.CompareAndSwap(int32(cur), int32(to)) {
			return
		}
	}
}

func (s *Session) setErr(err error) {
	if err == nil {
		return
	}
	s.errOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
	})
}

func (s *Session) markClosing() {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
}

func (s *Session) beginFinish() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return false
	}
	s.finished = true
	return true
}

func (s *Session) discardPending() {
	s.feedMu.Lock()
	s.feedBuf = nil
	s.feedMu.Unlock()
}

func (s *Session) finishResult() (SessionResult, error) {
	s.endOnce.Do(func() {
		s.mu.Lock()
		s.stats.sessionDur = time.Since(s.startedAt)
		st := s.State()
		snap := s.stats
		s.mu.Unlock()

		s.mx.sessionEnded(st, snap.sessionDur)
		log.SessionMetrics(log.SessionMetricsData{
			Kind:          s.kind.Name,
			Outcome:       st.String(),
			ConnectMs:     float64(snap.connectDur.Milliseconds()),
			FinalizeMs:    float64(snap.finalizeWait.Milliseconds()),
			TotalMs:       float64(snap.sessionDur.Milliseconds()),
			AudioS:        pcm.Duration(int(snap.sentBytes)).Seconds(),
			SentChunks:    snap.sentChunks,
			SentKB:        float64(snap.sentBytes) / 1024,
			RecvMessages:  snap.recvMessages,
			RecvASR:       snap.recvASR,
			DroppedFrames: snap.droppedChunks,
		})
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	r := SessionResult{
		State:  s.State(),
		Record: s.rec,
		Stats: Stats{
			ConnectMs:     float64(s.stats.connectDur.Milliseconds()),
			SentChunks:    s.stats.sentChunks,
			SentKB:        float64(s.stats.sentBytes) / 1024,
			AudioSeconds:  pcm.Duration(int(s.stats.sentBytes)).Seconds(),
			DroppedChunks: s.stats.droppedChunks,
			RecvMessages:  s.stats.recvMessages,
			RecvASR:       s.stats.recvASR,
			FinalizeMs:    float64(s.stats.finalizeWait.Milliseconds()),
			TotalMs:       float64(s.stats.sessionDur.Milliseconds()),
		},
	}
	if s.hint != nil {
		r.Transcript = s.hint.Text
	}
	return r, s.err
}
