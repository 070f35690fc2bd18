package wire

import (
	"errors"
	"testing"
)

func TestDecodeASRResult(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"asr_result","text":"你好","is_final":true}`), "contact")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	asr, ok := ev.(ASRResult)
	if !ok {
		t.Fatalf("got %T, want ASRResult", ev)
	}
	if asr.Text != "你好" || !asr.IsFinal {
		t.Errorf("got %+v", asr)
	}
}

func TestDecodeASRResultDefaults(t *testing.T) {
	cases := []string{
		`{"type":"asr_result","text":"hi"}`,
		`{"type":"asr_result","text":"hi","is_final":"yes"}`,
		`{"type":"asr_result","text":"hi","is_final":1}`,
	}
	for _, in := range cases {
		ev, err := Decode([]byte(in), "contact")
		if err != nil {
			t.Fatalf("Decode(%s): %v", in, err)
		}
		if asr := ev.(ASRResult); asr.IsFinal {
			t.Errorf("%s: is_final should default to false", in)
		}
	}
}

func TestDecodeErrorCodeCoercion(t *testing.T) {
	cases := []struct {
		in      string
		code    int
		hasCode bool
	}{
		{`{"type":"error","code":404,"message":"not found"}`, 404, true},
		{`{"type":"error","code":404.0,"message":"not found"}`, 404, true},
		{`{"type":"error","code":"404","message":"not found"}`, 404, true},
		{`{"type":"error","code":" 500 ","message":"oops"}`, 500, true},
		{`{"type":"error","code":"4xx","message":"weird"}`, 0, false},
		{`{"type":"error","code":[1],"message":"weird"}`, 0, false},
		{`{"type":"error","message":"no code"}`, 0, false},
	}
	for _, c := range cases {
		ev, err := Decode([]byte(c.in), "contact")
		if err != nil {
			t.Fatalf("Decode(%s): %v", c.in, err)
		}
		e, ok := ev.(ErrorEvent)
		if !ok {
			t.Fatalf("%s: got %T", c.in, ev)
		}
		if e.Code != c.code || e.HasCode != c.hasCode {
			t.Errorf("%s: code=%d hasCode=%v, want %d %v", c.in, e.Code, e.HasCode, c.code, c.hasCode)
		}
	}
}

func TestDecodeUpdateResult(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"update_result","schedule":{"id":"s1","title":"dentist"},"message":"ok"}`), "schedule")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	ur, ok := ev.(UpdateResult)
	if !ok {
		t.Fatalf("got %T, want UpdateResult", ev)
	}
	if len(ur.Record) == 0 || ur.Message != "ok" {
		t.Errorf("got %+v", ur)
	}
}

func TestDecodeUpdateResultMissingRecord(t *testing.T) {
	cases := []string{
		`{"type":"update_result","message":"ok"}`,
		`{"type":"update_result","schedule":"nope"}`,
		`{"type":"update_result","contact":{"id":"c1"}}`, // wrong key for kind
	}
	for _, in := range cases {
		_, err := Decode([]byte(in), "schedule")
		if !errors.Is(err, ErrRecordParse) {
			t.Errorf("Decode(%s) = %v, want ErrRecordParse", in, err)
		}
		if errors.Is(err, ErrMalformedMessage) {
			t.Errorf("Decode(%s): record failure must stay distinct from malformed", in)
		}
	}
}

func TestDecodeUnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"bogus"}`), "contact")
	if !errors.Is(err, ErrMalformedMessage) {
		t.Fatalf("got %v, want ErrMalformedMessage", err)
	}
}

func TestDecodeGarbage(t *testing.T) {
	cases := []string{``, `not json`, `[]`, `{"text":"hi"}`, `{"type":7}`}
	for _, in := range cases {
		if _, err := Decode([]byte(in), "contact"); !errors.Is(err, ErrMalformedMessage) {
			t.Errorf("Decode(%q) = %v, want ErrMalformedMessage", in, err)
		}
	}
}

func TestDecodeOptionalMessages(t *testing.T) {
	ev, err := Decode([]byte(`{"type":"processing"}`), "contact")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if p := ev.(Processing); p.Message != "" {
		t.Errorf("got %+v", p)
	}
	ev, err = Decode([]byte(`{"type":"cancelled","message":"stopped"}`), "contact")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if c := ev.(Cancelled); c.Message != "stopped" {
		t.Errorf("got %+v", c)
	}
}

func TestTerminal(t *testing.T) {
	terminal := []Event{UpdateResult{}, Cancelled{}, ErrorEvent{}}
	for _, ev := range terminal {
		if !Terminal(ev) {
			t.Errorf("%T should be terminal", ev)
		}
	}
	for _, ev := range []Event{ASRResult{}, Processing{}} {
		if Terminal(ev) {
			t.Errorf("%T should not be terminal", ev)
		}
	}
}
