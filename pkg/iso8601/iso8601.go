// Package iso8601 converts between the API's date strings and time.Time.
//
// The API writes dates as "2015-05-21T14:24:03+00:00": second precision and a
// numeric UTC offset with a colon. That is the only accepted form.
package iso8601

import (
	"errors"
	"fmt"
	"time"
)

// Layout is the time layout of every date on the wire.
const Layout = "2006-01-02T15:04:05-07:00"

// ErrMalformedDate is matched by every error returned from Parse.
var ErrMalformedDate = errors.New("malformed date")

// MalformedDateError reports a date string that does not match Layout.
type MalformedDateError struct {
	Err   error
	Value string
}

func (e *MalformedDateError) Error() string {
	return fmt.Sprintf("malformed date %q: want layout %s", e.Value, Layout)
}

func (e *MalformedDateError) Unwrap() error { return e.Err }

// Is reports whether target is ErrMalformedDate.
func (*MalformedDateError) Is(target error) bool { return target == ErrMalformedDate }

// Format renders t in Layout. A UTC time is written with "+00:00", never "Z".
func Format(t time.Time) string {
	return t.Format(Layout)
}

// Parse reads s in Layout.
// time.Parse tolerates fractional seconds the layout does not mention,
// so the length is checked first to keep the format exact.
func Parse(s string) (time.Time, error) {
	if len(s) != len(Layout) {
		return time.Time{}, &MalformedDateError{Value: s}
	}
	t, err := time.Parse(Layout, s)
	if err != nil {
		return time.Time{}, &MalformedDateError{Value: s, Err: err}
	}
	return t, nil
}
