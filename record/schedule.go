package record

import "encoding/json"

// ScheduleRecord is a schedule entry as returned by the update service.
// Times are unix seconds; the server does not send zones.
type ScheduleRecord struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Location     string `json:"location,omitempty"`
	StartsAt     int64  `json:"starts_at"`
	EndsAt       int64  `json:"ends_at,omitempty"`
	AllDay       bool   `json:"all_day,omitempty"`
	RemindBefore int    `json:"remind_before,omitempty"` // minutes
	Notes        string `json:"notes,omitempty"`
}

func (s *ScheduleRecord) RecordID() string      { return s.ID }
func (s *ScheduleRecord) setRecordID(id string) { s.ID = id }

func parseSchedule(raw json.RawMessage) (Record, error) {
	var s ScheduleRecord
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
