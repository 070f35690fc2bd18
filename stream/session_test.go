package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"dictate/record"
	"dictate/wire"
)

func TestEndpoint(t *testing.T) {
	got, err := Endpoint("https://api.example.com", record.Contact, "42", "tok")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(got, "wss://api.example.com/api/voice/contact/update?") {
		t.Fatalf("endpoint = %q", got)
	}
	if !strings.Contains(got, "contact_id=42") || !strings.Contains(got, "token=tok") {
		t.Fatalf("missing query params: %q", got)
	}

	got, err = Endpoint("http://localhost:8080/base/", record.Schedule, "7", "t")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(got, "ws://localhost:8080/base/api/voice/schedule/update?") {
		t.Fatalf("endpoint = %q", got)
	}

	if _, err := Endpoint("ftp://example.com", record.Contact, "1", "t"); !errors.Is(err, ErrInvalidEndpoint) {
		t.Fatalf("ftp scheme: err = %v, want ErrInvalidEndpoint", err)
	}
	if _, err := Endpoint("http://", record.Contact, "1", "t"); !errors.Is(err, ErrInvalidEndpoint) {
		t.Fatalf("hostless: err = %v, want ErrInvalidEndpoint", err)
	}
}

func TestSessionRequiresCredential(t *testing.T) {
	_, err := New(context.Background(), Config{
		BaseURL:    "http://localhost:1",
		Kind:       record.Contact,
		RecordID:   "1",
		Credential: StaticCredential(""),
	})
	if !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("err = %v, want ErrMissingCredential", err)
	}
	_, err = New(context.Background(), Config{BaseURL: "http://localhost:1"})
	if !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("nil provider: err = %v, want ErrMissingCredential", err)
	}
}

// updateServer accepts one connection, consumes the header frame and
// audio until the done action arrives, then emits the given replies as
// text frames.
func updateServer(t *testing.T, replies ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close(websocket.StatusNormalClosure, "")
		ctx := r.Context()

		// Header frame must arrive first and be a canonical WAV header.
		typ, data, err := c.Read(ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageBinary || len(data) != wire.WAVHeaderSize || !bytes.HasPrefix(data, []byte("RIFF")) {
			t.Errorf("first frame: type=%v len=%d, want 44-byte RIFF header", typ, len(data))
			return
		}

		for {
			typ, data, err := c.Read(ctx)
			if err != nil {
				return
			}
			if typ == websocket.MessageBinary {
				continue
			}
			var act struct {
				Action string `json:"action"`
			}
			if err := json.Unmarshal(data, &act); err != nil {
				t.Errorf("bad action frame: %s", data)
				return
			}
			if act.Action == wire.ActionCancel {
				return
			}
			if act.Action != wire.ActionDone {
				t.Errorf("unexpected action %q", act.Action)
				return
			}
			break
		}
		for _, reply := range replies {
			if err := c.Write(ctx, websocket.MessageText, []byte(reply)); err != nil {
				return
			}
		}
		// Hold the connection open until the client closes it.
		c.Read(ctx)
	}))
}

func TestSessionCompleted(t *testing.T) {
	srv := updateServer(t,
		`{"type":"processing","message":"working"}`,
		`{"type":"asr_result","text":"call mom tomorrow","is_final":true}`,
		`{"type":"update_result","contact":{"id":"srv-9","name":"Mom","phones":["555"]},"message":"ok"}`,
	)
	defer srv.Close()

	var transcripts []string
	s, err := New(context.Background(), Config{
		BaseURL:     srv.URL,
		Kind:        record.Contact,
		RecordID:    "42",
		KeepLocalID: "local-7",
		Credential:  StaticCredential("tok"),
		ChunkBytes:  320,
		Events: Events{
			Transcript: func(text string, final bool) { transcripts = append(transcripts, text) },
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	s.Feed(make([]byte, 320))
	res, err := s.Done()
	if err != nil {
		t.Fatalf("Done: %v", err)
	}
	if res.State != Completed {
		t.Fatalf("state = %v, want Completed", res.State)
	}
	if res.Record == nil || res.Record.RecordID() != "local-7" {
		t.Fatalf("record identity = %v, want keep-local-id local-7", res.Record)
	}
	contact, ok := res.Record.(*record.ContactRecord)
	if !ok || contact.Name != "Mom" || len(contact.Phones) != 1 {
		t.Fatalf("server fields lost: %+v", res.Record)
	}
	if res.Transcript != "call mom tomorrow" {
		t.Fatalf("transcript = %q", res.Transcript)
	}
	if len(transcripts) != 1 {
		t.Fatalf("transcript events = %d, want 1", len(transcripts))
	}
	if res.Stats.SentChunks < 1 || res.Stats.RecvMessages != 3 {
		t.Fatalf("stats = %+v", res.Stats)
	}
}

func TestSessionAdoptsServerIdentity(t *testing.T) {
	srv := updateServer(t, `{"type":"update_result","schedule":{"id":"srv-3","title":"standup"}}`)
	defer srv.Close()

	s, err := New(context.Background(), Config{
		BaseURL:    srv.URL,
		Kind:       record.Schedule,
		RecordID:   "3",
		Credential: StaticCredential("tok"),
	})
	if err != nil {
		t.Fatal(err)
	}
	res, err := s.Done()
	if err != nil {
		t.Fatal(err)
	}
	if res.Record.RecordID() != "srv-3" {
		t.Fatalf("identity = %q, want server id srv-3", res.Record.RecordID())
	}
}

func TestSessionServerError(t *testing.T) {
	srv := updateServer(t, `{"type":"error","code":"500","message":"boom"}`)
	defer srv.Close()

	s, err := New(context.Background(), Config{
		BaseURL:    srv.URL,
		Kind:       record.Contact,
		RecordID:   "1",
		Credential: StaticCredential("tok"),
	})
	if err != nil {
		t.Fatal(err)
	}
	res, err := s.Done()
	if err == nil || !strings.Contains(err.Error(), "500") {
		t.Fatalf("err = %v, want server error 500", err)
	}
	if res.State != Failed {
		t.Fatalf("state = %v, want Failed", res.State)
	}
}

func TestSessionMalformedMessage(t *testing.T) {
	srv := updateServer(t, `{"type":"bogus"}`)
	defer srv.Close()

	s, err := New(context.Background(), Config{
		BaseURL:    srv.URL,
		Kind:       record.Contact,
		RecordID:   "1",
		Credential: StaticCredential("tok"),
	})
	if err != nil {
		t.Fatal(err)
	}
	res, err := s.Done()
	if !errors.Is(err, wire.ErrMalformedMessage) {
		t.Fatalf("err = %v, want ErrMalformedMessage", err)
	}
	if res.State != Failed {
		t.Fatalf("state = %v, want Failed", res.State)
	}
}

func TestSessionRecordParseFailure(t *testing.T) {
	srv := updateServer(t, `{"type":"update_result","contact":5}`)
	defer srv.Close()

	s, err := New(context.Background(), Config{
		BaseURL:    srv.URL,
		Kind:       record.Contact,
		RecordID:   "1",
		Credential: StaticCredential("tok"),
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = s.Done()
	if !errors.Is(err, wire.ErrRecordParse) {
		t.Fatalf("err = %v, want ErrRecordParse", err)
	}
}

func TestSessionCancelDoesNotWaitForAck(t *testing.T) {
	// Server never acknowledges the cancel; the client must still return
	// promptly with a Cancelled outcome.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close(websocket.StatusNormalClosure, "")
		for {
			if _, _, err := c.Read(r.Context()); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	s, err := New(context.Background(), Config{
		BaseURL:    srv.URL,
		Kind:       record.Contact,
		RecordID:   "1",
		Credential: StaticCredential("tok"),
		ChunkBytes: 64,
	})
	if err != nil {
		t.Fatal(err)
	}
	s.Feed(make([]byte, 128))

	start := time.Now()
	res := s.Cancel()
	if res.State != Cancelled {
		t.Fatalf("state = %v, want Cancelled", res.State)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("cancel blocked for %v", elapsed)
	}
	if _, err := s.Done(); !errors.Is(err, ErrSessionDone) {
		t.Fatalf("second finish: err = %v, want ErrSessionDone", err)
	}
}

func TestSessionDialFailure(t *testing.T) {
	s, err := New(context.Background(), Config{
		BaseURL:    "http://127.0.0.1:1",
		Kind:       record.Contact,
		RecordID:   "1",
		Credential: StaticCredential("tok"),
	})
	if err != nil {
		t.Fatal(err)
	}
	res, err := s.Done()
	if err == nil {
		t.Fatal("expected connect error")
	}
	if res.State != Failed {
		t.Fatalf("state = %v, want Failed", res.State)
	}
}

func TestBacklogDropOldest(t *testing.T) {
	s := &Session{
		backlog: BacklogDropOldest,
		audioCh: make(chan []byte, 2),
	}
	s.enqueue([]byte{1})
	s.enqueue([]byte{2})
	s.enqueue([]byte{3}) // full queue: oldest must give way

	if got := <-s.audioCh; got[0] != 2 {
		t.Fatalf("head = %d, want 2 (oldest dropped)", got[0])
	}
	if got := <-s.audioCh; got[0] != 3 {
		t.Fatalf("next = %d, want 3", got[0])
	}
	if s.stats.droppedChunks != 1 {
		t.Fatalf("dropped = %d, want 1", s.stats.droppedChunks)
	}
}

func TestTailFlushDeadSender(t *testing.T) {
	// Sender bailed on a send error with the queue still full: the tail
	// flush must give up instead of waiting on a queue nobody drains.
	s := &Session{
		audioCh:  make(chan []byte, 1),
		sendDone: make(chan struct{}),
	}
	s.audioCh <- []byte{1}
	close(s.sendDone)
	s.feedBuf = []byte{2, 3}

	done := make(chan struct{})
	go func() {
		s.flushTail()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("tail flush blocked on a queue nobody drains")
	}
	if s.feedBuf != nil {
		t.Fatal("feed buffer not cleared")
	}
}
