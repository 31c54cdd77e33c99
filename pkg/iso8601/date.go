package iso8601

import (
	"bytes"
	"encoding/json"
	"time"
)

// Date is a time.Time that marshals to and from JSON through Format and Parse.
// A JSON null decodes to the zero Date, and the zero Date encodes as null.
type Date struct {
	time.Time
}

// NewDate wraps t.
func NewDate(t time.Time) Date { return Date{Time: t} }

// MarshalJSON implements json.Marshaler.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(Format(d.Time))
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return &MalformedDateError{Value: string(data), Err: err}
	}
	t, err := Parse(s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// String returns the wire form, or "" for the zero Date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return Format(d.Time)
}
