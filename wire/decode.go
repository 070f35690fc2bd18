package wire

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Decode parses one inbound message into an event. recordKey names the
// nested record field expected inside update_result ("contact" or
// "schedule", depending on the endpoint).
func Decode(data []byte, recordKey string) (Event, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	typ, ok := decodeString(fields["type"])
	if !ok || typ == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	}

	switch typ {
	case TypeASRResult:
		text, _ := decodeString(fields["text"])
		return ASRResult{
			Text:    text,
			IsFinal: decodeBool(fields["is_final"]),
		}, nil

	case TypeProcessing:
		msg, _ := decodeString(fields["message"])
		return Processing{Message: msg}, nil

	case TypeUpdateResult:
		raw, ok := fields[recordKey]
		if !ok || !isObject(raw) {
			return nil, fmt.Errorf("%w: missing %q object", ErrRecordParse, recordKey)
		}
		msg, _ := decodeString(fields["message"])
		return UpdateResult{Record: raw, Message: msg}, nil

	case TypeCancelled:
		msg, _ := decodeString(fields["message"])
		return Cancelled{Message: msg}, nil

	case TypeError:
		code, hasCode := decodeCode(fields["code"])
		msg, _ := decodeString(fields["message"])
		return ErrorEvent{Code: code, HasCode: hasCode, Message: msg}, nil
	}

	return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedMessage, typ)
}

// decodeCode normalizes the server's loose code encodings. The field may
// arrive as an integer, a float, or a numeric string; anything else counts
// as absent.
func decodeCode(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var i int
	if err := json.Unmarshal(raw, &i); err == nil {
		return i, true
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return int(f), true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		if i, err := strconv.Atoi(s); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int(f), true
		}
	}
	return 0, false
}

// decodeBool defaults to false when the field is absent or mistyped.
func decodeBool(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return false
	}
	return b
}

func decodeString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func isObject(raw json.RawMessage) bool {
	for _, c := range raw {
		switch c {
		case ' ', '\t', '\n', '\r':
			continue
		case '{':
			return true
		default:
			return false
		}
	}
	return false
}
