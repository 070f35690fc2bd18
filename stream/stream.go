// Package stream owns one bidirectional connection to the update service:
// the wire framing (header first, audio in capture order, one control
// message), the session state machine, and the reconciliation of the
// terminal update_result into a domain record.
package stream

import (
	"errors"

	"dictate/metrics"
	"dictate/record"
)

// State is the session's position in its lifecycle. A session is
// single-use: once terminal it must be discarded, retry means a new one.
type State int32

const (
	Idle State = iota
	Connected
	Streaming
	AwaitingResult
	Completed
	Cancelled
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connected:
		return "connected"
	case Streaming:
		return "streaming"
	case AwaitingResult:
		return "awaiting_result"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether the session is finished.
func (s State) Terminal() bool {
	return s == Completed || s == Cancelled || s == Failed
}

var (
	// ErrInvalidEndpoint reports a base address that cannot be turned into
	// a websocket target URL.
	ErrInvalidEndpoint = errors.New("stream: invalid endpoint")

	// ErrMissingCredential reports that no session credential was
	// available at construction time.
	ErrMissingCredential = errors.New("stream: no session credential")

	// ErrSessionDone reports a second finish attempt on a session.
	ErrSessionDone = errors.New("stream: session already finished")
)

// CredentialProvider supplies the authenticated session credential put on
// the connection URL. Failures here are startup failures, surfaced before
// any network activity.
type CredentialProvider interface {
	CurrentCredential() (string, error)
}

// StaticCredential is a fixed token, typically from config or env.
type StaticCredential string

func (c StaticCredential) CurrentCredential() (string, error) {
	if c == "" {
		return "", ErrMissingCredential
	}
	return string(c), nil
}

// BacklogPolicy decides what happens when audio is produced faster than
// the uplink drains it.
type BacklogPolicy int

const (
	// BacklogBlock makes Feed block until the sender catches up.
	BacklogBlock BacklogPolicy = iota
	// BacklogDropOldest discards the oldest queued chunk to make room.
	BacklogDropOldest
)

// Events delivers live session output to the caller. All callbacks run on
// the session's receiver goroutine and must return promptly. Nil fields
// are skipped.
type Events struct {
	// Transcript receives each asr_result text as it arrives.
	Transcript func(text string, isFinal bool)
	// Processing receives the server's processing notices.
	Processing func(message string)
}

// Config describes one streaming update session.
type Config struct {
	// BaseURL is the configured service address, http(s) or ws(s) scheme.
	BaseURL string
	// Kind selects the endpoint path, the record query parameter and the
	// nested payload shape.
	Kind record.Kind
	// RecordID is the server-side target record.
	RecordID string
	// KeepLocalID, when non-empty, replaces the identity of the
	// reconciled record so existing local references stay valid.
	KeepLocalID string

	Credential CredentialProvider

	// Backlog bounds the outbound audio queue. Zero values mean
	// block-producer with the default depth.
	Backlog      BacklogPolicy
	BacklogDepth int
	// ChunkBytes re-chunks fed PCM for the uplink. Zero means 200 ms.
	ChunkBytes int

	Events  Events
	Metrics *metrics.Metrics
}
