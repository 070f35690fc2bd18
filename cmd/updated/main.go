// Command updated is a mock update service for manual testing. It speaks
// the client's wire protocol: a WAV header frame, binary audio, one
// control action, and the JSON event stream back.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"dictate/pcm"
	"dictate/record"
	"dictate/wire"
)

var (
	listen     = flag.String("listen", ":8090", "listen address")
	delay      = flag.Duration("delay", 300*time.Millisecond, "simulated processing delay")
	transcript = flag.String("transcript", "meet Ada at ten tomorrow", "transcript to return")
)

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

func main() {
	flag.Parse()

	http.HandleFunc(record.Contact.Path, handlerFor(record.Contact))
	http.HandleFunc(record.Schedule.Path, handlerFor(record.Schedule))

	log.Printf("mock update service listening on %s", *listen)
	log.Printf("endpoints: ws://localhost%s%s, ws://localhost%s%s",
		*listen, record.Contact.Path, *listen, record.Schedule.Path)
	if err := http.ListenAndServe(*listen, nil); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

func handlerFor(kind record.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recordID := r.URL.Query().Get(kind.IDParam)
		if r.URL.Query().Get("token") == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[%s] upgrade failed: %v", kind.Name, err)
			return
		}
		defer conn.Close()

		session := uuid.NewString()[:8]
		log.Printf("[%s %s] connected, target %s=%s", kind.Name, session, kind.IDParam, recordID)
		serve(conn, kind, recordID, session)
	}
}

func serve(conn *websocket.Conn, kind record.Kind, recordID, session string) {
	var audio int
	sawHeader := false

	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			log.Printf("[%s %s] read: %v", kind.Name, session, err)
			return
		}

		if typ == websocket.BinaryMessage {
			if !sawHeader {
				if len(data) != wire.WAVHeaderSize || !bytes.HasPrefix(data, []byte("RIFF")) {
					log.Printf("[%s %s] first frame is not a WAV header (%d bytes)", kind.Name, session, len(data))
					return
				}
				sawHeader = true
				continue
			}
			audio += len(data)
			continue
		}

		var act struct {
			Action string        `json:"action"`
			Hint   *wire.ASRHint `json:"asr_result"`
		}
		if err := json.Unmarshal(data, &act); err != nil {
			send(conn, map[string]any{"type": wire.TypeError, "code": 400, "message": "bad action frame"})
			return
		}

		switch act.Action {
		case wire.ActionCancel:
			log.Printf("[%s %s] cancelled after %.1fs of audio", kind.Name, session, pcm.Duration(audio).Seconds())
			send(conn, map[string]any{"type": wire.TypeCancelled, "message": "cancelled"})
			return

		case wire.ActionDone:
			log.Printf("[%s %s] done, %.1fs of audio, hint=%v", kind.Name, session, pcm.Duration(audio).Seconds(), act.Hint != nil)
			send(conn, map[string]any{"type": wire.TypeProcessing, "message": "understanding speech"})
			time.Sleep(*delay)
			text := *transcript
			if act.Hint != nil && act.Hint.Text != "" {
				text = act.Hint.Text
			}
			send(conn, map[string]any{"type": wire.TypeASRResult, "text": text, "is_final": true})
			time.Sleep(*delay)
			send(conn, map[string]any{
				"type":    wire.TypeUpdateResult,
				kind.Name: fakeRecord(kind, recordID, text),
				"message": "record updated",
			})
			// Keep the connection until the client hangs up.
			conn.ReadMessage()
			return

		default:
			send(conn, map[string]any{"type": wire.TypeError, "code": "400", "message": fmt.Sprintf("unknown action %q", act.Action)})
			return
		}
	}
}

func fakeRecord(kind record.Kind, recordID, text string) any {
	id := recordID
	if id == "" {
		id = uuid.NewString()
	}
	if kind.Name == record.Schedule.Name {
		start := time.Now().Add(24 * time.Hour).Truncate(time.Hour)
		return record.ScheduleRecord{
			ID:       id,
			Title:    text,
			StartsAt: start.Unix(),
			EndsAt:   start.Add(time.Hour).Unix(),
			Notes:    "created by mock service",
		}
	}
	return record.ContactRecord{
		ID:     id,
		Name:   "Ada Lovelace",
		Phones: []string{"555-0142"},
		Notes:  text,
	}
}

func send(conn *websocket.Conn, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Printf("write: %v", err)
	}
}
