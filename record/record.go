// Package record holds the domain entities produced by a voice update
// session and the reconciliation that preserves local identity across a
// server-side rewrite.
package record

import (
	"encoding/json"
	"fmt"

	"dictate/wire"
)

// Record is a reconciled domain entity: a contact or a schedule entry.
type Record interface {
	RecordID() string
	setRecordID(id string)
}

// Kind binds everything endpoint-dependent about a record type so the
// streaming session and reconciler stay generic instead of existing as two
// parallel copies.
type Kind struct {
	// Name is the nested object key inside update_result.
	Name string
	// Path is the fixed endpoint path under the configured base address.
	Path string
	// IDParam is the query parameter naming the target record.
	IDParam string

	parse func(raw json.RawMessage) (Record, error)
}

var Contact = Kind{
	Name:    "contact",
	Path:    "/api/voice/contact/update",
	IDParam: "contact_id",
	parse:   parseContact,
}

var Schedule = Kind{
	Name:    "schedule",
	Path:    "/api/voice/schedule/update",
	IDParam: "schedule_id",
	parse:   parseSchedule,
}

// KindByName resolves "contact" or "schedule".
func KindByName(name string) (Kind, error) {
	switch name {
	case Contact.Name:
		return Contact, nil
	case Schedule.Name:
		return Schedule, nil
	}
	return Kind{}, fmt.Errorf("unknown record kind %q", name)
}

// Parse decodes the raw nested object from an update_result. A payload that
// does not match the kind's shape is a record-parse failure, not a generic
// malformed message.
func (k Kind) Parse(raw json.RawMessage) (Record, error) {
	rec, err := k.parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", wire.ErrRecordParse, k.Name, err)
	}
	return rec, nil
}

// Reconcile parses the server payload and restores the caller's identity.
// All server-supplied fields are kept verbatim; only the identity is
// overwritten, and only when keepLocalID was supplied. A session created
// without a local id adopts the server-native identifier.
func (k Kind) Reconcile(raw json.RawMessage, keepLocalID string) (Record, error) {
	rec, err := k.Parse(raw)
	if err != nil {
		return nil, err
	}
	if keepLocalID != "" {
		rec.setRecordID(keepLocalID)
	}
	return rec, nil
}
