package state

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Record is the persisted baseline. It is always written whole.
//
// MessageHash is derived from AlertText and kept for forward compatibility
// only: the change decision looks at Fingerprint alone.
type Record struct {
	MessageHash string    `json:"hash_message,omitempty"`
	AlertText   string    `json:"content_message,omitempty"`
	UpdateDate  string    `json:"content_date,omitempty"`
	Fingerprint string    `json:"screenshot_hash"`
	SavedAt     Timestamp `json:"timestamp"`
}

// Timestamp marshals as RFC 3339 and also accepts the zone-less ISO 8601
// form written by earlier versions of the baseline file.
type Timestamp struct {
	time.Time
}

var legacyLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Format(time.RFC3339Nano))
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		t.Time = time.Time{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	raw = strings.TrimSpace(raw)
	for _, layout := range legacyLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("timestamp: unrecognised format %q", raw)
}

// Encode renders the record as indented UTF-8 JSON with non-ASCII and HTML
// characters kept literal, so the file stays human-inspectable.
func (r Record) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return nil, fmt.Errorf("encode state record: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses a record previously produced by Encode.
func Decode(data []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("decode state record: %w", err)
	}
	if r.Fingerprint == "" {
		return Record{}, fmt.Errorf("decode state record: screenshot_hash is empty")
	}
	return r, nil
}
