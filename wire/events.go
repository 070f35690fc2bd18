// Package wire implements the update-service wire protocol: the binary
// header frame sent before audio, the client control actions, and the
// decoder for inbound server events.
package wire

import (
	"encoding/json"
	"errors"
)

// Server event type tags. The set is closed: anything else is a protocol
// violation, not something to skip over.
const (
	TypeASRResult    = "asr_result"
	TypeProcessing   = "processing"
	TypeUpdateResult = "update_result"
	TypeCancelled    = "cancelled"
	TypeError        = "error"
)

var (
	// ErrMalformedMessage reports a payload that does not parse as a known
	// server event envelope.
	ErrMalformedMessage = errors.New("wire: malformed server message")

	// ErrRecordParse reports a valid update_result envelope whose nested
	// record payload is missing or unusable. Kept distinct from
	// ErrMalformedMessage so callers can report "update produced an
	// unusable record" instead of "connection broken".
	ErrRecordParse = errors.New("wire: update result record unparsable")
)

// Event is one decoded inbound server message.
type Event interface {
	eventType() string
}

// ASRResult carries an incremental or final transcription.
type ASRResult struct {
	Text    string
	IsFinal bool
}

// Processing signals the server is working on the structured update.
type Processing struct {
	Message string
}

// UpdateResult is the terminal success event. Record holds the raw nested
// record object for the session's record kind; the record package turns it
// into a typed entity.
type UpdateResult struct {
	Record  json.RawMessage
	Message string
}

// Cancelled acknowledges a client cancel.
type Cancelled struct {
	Message string
}

// ErrorEvent is a server-reported failure. HasCode distinguishes a real
// zero code from an absent one.
type ErrorEvent struct {
	Code    int
	HasCode bool
	Message string
}

func (ASRResult) eventType() string    { return TypeASRResult }
func (Processing) eventType() string   { return TypeProcessing }
func (UpdateResult) eventType() string { return TypeUpdateResult }
func (Cancelled) eventType() string    { return TypeCancelled }
func (ErrorEvent) eventType() string   { return TypeError }

// TypeOf returns the wire tag of a decoded event.
func TypeOf(ev Event) string { return ev.eventType() }

// Terminal reports whether an event ends the session's receive loop.
func Terminal(ev Event) bool {
	switch ev.(type) {
	case UpdateResult, Cancelled, ErrorEvent:
		return true
	}
	return false
}
