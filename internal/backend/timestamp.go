package backend

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// Timestamp accepts the formats the backend has been seen to emit: RFC 3339,
// a space-separated date-time, or Unix seconds/milliseconds.
type Timestamp struct {
	time.Time
	// Raw holds the original value when it could not be parsed.
	Raw string
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	time.RFC1123,
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] != '"' {
		f, err := strconv.ParseFloat(string(b), 64)
		if err != nil {
			t.Raw = string(b)
			return nil
		}
		if f > 1e12 {
			t.Time = time.UnixMilli(int64(f))
		} else {
			t.Time = time.Unix(int64(f), 0)
		}
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	t.Raw = s
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.Time.IsZero() {
		if t.Raw == "" {
			return []byte("null"), nil
		}
		return json.Marshal(t.Raw)
	}
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

// LocalTime renders the timestamp as a local wall-clock time.
func (t Timestamp) LocalTime() string {
	if t.Time.IsZero() {
		return t.Raw
	}
	return t.Time.Local().Format("15:04:05")
}
