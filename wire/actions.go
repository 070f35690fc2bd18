package wire

import "encoding/json"

// Client control actions, sent as text frames.
const (
	ActionDone   = "audio_record_done"
	ActionCancel = "cancel"
)

// ASRHint is the optional last-known transcription attached to the done
// action so the server need not wait for its own final ASR pass.
type ASRHint struct {
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
}

type action struct {
	Action string   `json:"action"`
	Hint   *ASRHint `json:"asr_result,omitempty"`
}

// DoneMessage builds the end-of-audio control message. hint may be nil.
func DoneMessage(hint *ASRHint) []byte {
	b, _ := json.Marshal(action{Action: ActionDone, Hint: hint})
	return b
}

// CancelMessage builds the cancel control message.
func CancelMessage() []byte {
	b, _ := json.Marshal(action{Action: ActionCancel})
	return b
}
