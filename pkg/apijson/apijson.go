// Package apijson encodes and decodes API payloads.
//
// The API names fields in lower_case_with_underscores while Go code uses
// exported CamelCase fields. A Serializer built from the SnakeCase profile
// translates between the two, so models do not need json tags:
//
//	var meta model.Metadata
//	if err := apijson.Default().Decode(body, &meta); err != nil {
//	    return err
//	}
//
// A field with an explicit json tag name keeps that name on the wire.
// Dates should use iso8601.Date, which marshals in the API's date layout.
package apijson

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sync"

	"github.com/codeGROOVE-dev/vimeonet/pkg/iso8601"
)

// ErrSchemaMismatch is matched by decode errors caused by invalid JSON or by
// values whose shape does not fit the target type.
var ErrSchemaMismatch = errors.New("schema mismatch")

// Naming selects how Go field names map to wire names.
type Naming int

// Naming policies.
const (
	// SnakeCase maps RelatedVideos to related_videos and back.
	SnakeCase Naming = iota
	// Identity leaves names as encoding/json writes them.
	Identity
)

func (n Naming) String() string {
	switch n {
	case SnakeCase:
		return "snake_case"
	case Identity:
		return "identity"
	default:
		return fmt.Sprintf("Naming(%d)", int(n))
	}
}

// Profile describes the conventions a Serializer applies.
type Profile struct {
	Naming Naming
}

// DefaultProfile returns the API's conventions.
func DefaultProfile() Profile {
	return Profile{Naming: SnakeCase}
}

// Serializer encodes and decodes values under a Profile.
// It holds no mutable state and is safe for concurrent use.
type Serializer struct {
	profile Profile
}

// New returns a Serializer for p.
func New(p Profile) *Serializer {
	return &Serializer{profile: p}
}

var defaultSerializer = sync.OnceValue(func() *Serializer {
	return New(DefaultProfile())
})

// Default returns the shared Serializer for DefaultProfile.
func Default() *Serializer {
	return defaultSerializer()
}

// Profile returns the conventions s applies.
func (s *Serializer) Profile() Profile {
	return s.profile
}

// Encode returns the wire form of v.
func (s *Serializer) Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	if s.profile.Naming == Identity {
		return data, nil
	}
	out, err := rewrite(data, reflect.TypeOf(v), toWire)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return out, nil
}

// EncodeTo writes the wire form of v to w.
func (s *Serializer) EncodeTo(w io.Writer, v any) error {
	data, err := s.Encode(v)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// Decode parses data into v, which must be a non-nil pointer.
// Unknown wire fields are ignored and missing ones leave v's fields untouched.
func (s *Serializer) Decode(data []byte, v any) error {
	if s.profile.Naming == SnakeCase {
		rewritten, err := rewrite(data, reflect.TypeOf(v), fromWire)
		if err != nil {
			return fmt.Errorf("decode: %w: %w", ErrSchemaMismatch, err)
		}
		data = rewritten
	}
	if err := json.Unmarshal(data, v); err != nil {
		var invalid *json.InvalidUnmarshalError
		if errors.As(err, &invalid) || errors.Is(err, iso8601.ErrMalformedDate) {
			return fmt.Errorf("decode: %w", err)
		}
		return fmt.Errorf("decode: %w: %w", ErrSchemaMismatch, err)
	}
	return nil
}

// DecodeFrom reads r to the end and decodes it into v.
func (s *Serializer) DecodeFrom(r io.Reader, v any) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	return s.Decode(data, v)
}

var errTrailingData = errors.New("invalid character after top-level value")

// rewrite re-emits the JSON document in data with struct keys renamed for dir.
// Key order is preserved. Under fromWire, keys a struct does not know are dropped.
func rewrite(data []byte, t reflect.Type, dir direction) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var buf bytes.Buffer
	buf.Grow(len(data))
	if err := transcode(dec, &buf, t, dir); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		if err == nil {
			err = errTrailingData
		}
		return nil, err
	}
	return buf.Bytes(), nil
}
