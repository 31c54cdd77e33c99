package iso8601

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestParseFormatLiteral(t *testing.T) {
	const s = "2015-05-21T14:24:03+00:00"
	got, err := Parse(s)
	if err != nil {
		t.Fatalf("Parse(%q) error = %v", s, err)
	}
	want := time.Date(2015, 5, 21, 14, 24, 3, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Parse(%q) = %v, want %v", s, got, want)
	}
	if out := Format(got); out != s {
		t.Errorf("Format(Parse(%q)) = %q", s, out)
	}
}

func TestRoundTrip(t *testing.T) {
	zones := []*time.Location{
		time.UTC,
		time.FixedZone("", -5*3600),
		time.FixedZone("", 5*3600+30*60),
		time.FixedZone("", 14*3600),
	}
	base := time.Date(2024, 2, 29, 23, 59, 59, 0, time.UTC)
	for _, loc := range zones {
		in := base.In(loc)
		s := Format(in)
		got, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q) error = %v", s, err)
		}
		if !got.Equal(in) {
			t.Errorf("Parse(Format(%v)) = %v", in, got)
		}
		_, wantOff := in.Zone()
		if _, off := got.Zone(); off != wantOff {
			t.Errorf("offset = %d, want %d", off, wantOff)
		}
		if again := Format(got); again != s {
			t.Errorf("Format(Parse(%q)) = %q", s, again)
		}
	}
}

func TestFormatUTCUsesNumericOffset(t *testing.T) {
	got := Format(time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC))
	if want := "2020-01-02T03:04:05+00:00"; got != want {
		t.Errorf("Format() = %q, want %q", got, want)
	}
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"zulu", "2015-05-21T14:24:03Z"},
		{"no colon offset", "2015-05-21T14:24:03+0000"},
		{"fractional seconds", "2015-05-21T14:24:03.123+00:00"},
		{"date only", "2015-05-21"},
		{"space separator", "2015-05-21 14:24:03+00:00"},
		{"bad month", "2015-13-21T14:24:03+00:00"},
		{"garbage", "not a date at all, really!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			if err == nil {
				t.Fatalf("Parse(%q) expected error", tt.input)
			}
			if !errors.Is(err, ErrMalformedDate) {
				t.Errorf("Parse(%q) error = %v, want ErrMalformedDate", tt.input, err)
			}
			var mde *MalformedDateError
			if !errors.As(err, &mde) || mde.Value != tt.input {
				t.Errorf("Parse(%q) error value not recorded: %v", tt.input, err)
			}
		})
	}
}

func TestDateJSON(t *testing.T) {
	type doc struct {
		Created  Date  `json:"created"`
		Modified *Date `json:"modified"`
		Missing  Date  `json:"missing"`
	}

	var d doc
	in := `{"created":"2015-05-21T14:24:03+00:00","modified":"2016-01-01T00:00:00-08:00","missing":null}`
	if err := json.Unmarshal([]byte(in), &d); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got := d.Created.String(); got != "2015-05-21T14:24:03+00:00" {
		t.Errorf("Created = %q", got)
	}
	if d.Modified == nil || d.Modified.String() != "2016-01-01T00:00:00-08:00" {
		t.Errorf("Modified = %v", d.Modified)
	}
	if !d.Missing.IsZero() {
		t.Errorf("Missing = %v, want zero", d.Missing)
	}

	out, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"created":"2015-05-21T14:24:03+00:00","modified":"2016-01-01T00:00:00-08:00","missing":null}`
	if string(out) != want {
		t.Errorf("Marshal() = %s, want %s", out, want)
	}
}

func TestDateJSONMalformed(t *testing.T) {
	tests := []string{`"2015-05-21T14:24:03Z"`, `12345`, `"yesterday"`}
	for _, in := range tests {
		var d Date
		err := json.Unmarshal([]byte(in), &d)
		if !errors.Is(err, ErrMalformedDate) {
			t.Errorf("Unmarshal(%s) error = %v, want ErrMalformedDate", in, err)
		}
	}
}
