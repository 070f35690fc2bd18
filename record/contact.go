package record

import "encoding/json"

// ContactRecord is a contact as returned by the update service.
type ContactRecord struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Phones   []string `json:"phones,omitempty"`
	Emails   []string `json:"emails,omitempty"`
	Company  string   `json:"company,omitempty"`
	Title    string   `json:"title,omitempty"`
	Address  string   `json:"address,omitempty"`
	Birthday string   `json:"birthday,omitempty"`
	Notes    string   `json:"notes,omitempty"`
}

func (c *ContactRecord) RecordID() string      { return c.ID }
func (c *ContactRecord) setRecordID(id string) { c.ID = id }

func parseContact(raw json.RawMessage) (Record, error) {
	var c ContactRecord
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
