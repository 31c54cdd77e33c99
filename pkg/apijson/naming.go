package apijson

import (
	"bytes"
	"encoding"
	"encoding/json"
	"errors"
	"io"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/iancoleman/strcase"
)

type direction int

const (
	toWire direction = iota
	fromWire
)

var (
	jsonMarshalerType   = reflect.TypeFor[json.Marshaler]()
	jsonUnmarshalerType = reflect.TypeFor[json.Unmarshaler]()
	textMarshalerType   = reflect.TypeFor[encoding.TextMarshaler]()
	textUnmarshalerType = reflect.TypeFor[encoding.TextUnmarshaler]()
)

func transcode(dec *json.Decoder, buf *bytes.Buffer, t reflect.Type, dir direction) error {
	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return io.ErrUnexpectedEOF
		}
		return err
	}

	t = structural(t)
	switch tok := tok.(type) {
	case json.Delim:
		if tok == '{' {
			return transcodeObject(dec, buf, t, dir)
		}
		// Token only ever opens a value with '{' or '['.
		return transcodeArray(dec, buf, t, dir)
	case string:
		writeString(buf, tok)
	case json.Number:
		buf.WriteString(tok.String())
	case bool:
		buf.WriteString(strconv.FormatBool(tok))
	case nil:
		buf.WriteString("null")
	}
	return nil
}

func transcodeObject(dec *json.Decoder, buf *bytes.Buffer, t reflect.Type, dir direction) error {
	var (
		fields *fieldSet
		elem   reflect.Type
	)
	if t != nil {
		switch t.Kind() {
		case reflect.Struct:
			fields = fieldsOf(t)
		case reflect.Map:
			elem = t.Elem()
		default:
		}
	}

	buf.WriteByte('{')
	wrote := false
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string) //nolint:errcheck // object keys are always strings

		next := elem
		if fields != nil {
			f, ok := fields.lookup(key, dir)
			if !ok && dir == fromWire {
				var discard bytes.Buffer
				if err := transcode(dec, &discard, nil, dir); err != nil {
					return err
				}
				continue
			}
			if ok {
				key, next = f.key(dir), f.typ
			} else {
				next = nil
			}
		}

		if wrote {
			buf.WriteByte(',')
		}
		wrote = true
		writeString(buf, key)
		buf.WriteByte(':')
		if err := transcode(dec, buf, next, dir); err != nil {
			return err
		}
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	buf.WriteByte('}')
	return nil
}

func transcodeArray(dec *json.Decoder, buf *bytes.Buffer, t reflect.Type, dir direction) error {
	var elem reflect.Type
	if t != nil && (t.Kind() == reflect.Slice || t.Kind() == reflect.Array) {
		elem = t.Elem()
	}

	buf.WriteByte('[')
	for i := 0; dec.More(); i++ {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := transcode(dec, buf, elem, dir); err != nil {
			return err
		}
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	buf.WriteByte(']')
	return nil
}

func writeString(buf *bytes.Buffer, s string) {
	b, _ := json.Marshal(s) //nolint:errcheck // marshaling a string cannot fail
	buf.Write(b)
}

// structural strips pointers and returns nil for types whose JSON shape is
// not derived from their fields: interfaces and custom (un)marshalers.
func structural(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() == reflect.Interface {
		return nil
	}
	pt := reflect.PointerTo(t)
	if pt.Implements(jsonMarshalerType) || pt.Implements(jsonUnmarshalerType) ||
		pt.Implements(textMarshalerType) || pt.Implements(textUnmarshalerType) {
		return nil
	}
	return t
}

// field is one JSON-visible struct field.
type field struct {
	typ   reflect.Type
	goKey string // key encoding/json uses: the tag name or the Go field name
	wire  string // key on the wire
}

func (f *field) key(dir direction) string {
	if dir == toWire {
		return f.wire
	}
	return f.goKey
}

type fieldSet struct {
	byGo   map[string]*field
	byWire map[string]*field
}

func (s *fieldSet) lookup(key string, dir direction) (*field, bool) {
	if dir == toWire {
		f, ok := s.byGo[key]
		return f, ok
	}
	f, ok := s.byWire[key]
	return f, ok
}

var fieldCache sync.Map // map[reflect.Type]*fieldSet

func fieldsOf(t reflect.Type) *fieldSet {
	if cached, ok := fieldCache.Load(t); ok {
		if fs, ok := cached.(*fieldSet); ok {
			return fs
		}
	}
	fs := &fieldSet{byGo: map[string]*field{}, byWire: map[string]*field{}}
	collectFields(t, fs)
	actual, _ := fieldCache.LoadOrStore(t, fs)
	if cached, ok := actual.(*fieldSet); ok {
		return cached
	}
	return fs
}

// collectFields adds t's fields to fs, then the fields promoted from its
// embedded structs. Names already present win, as in encoding/json.
func collectFields(t reflect.Type, fs *fieldSet) {
	var embedded []reflect.Type
	for i := range t.NumField() {
		sf := t.Field(i)
		tag := sf.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")

		if sf.Anonymous && name == "" {
			ft := sf.Type
			if ft.Kind() == reflect.Pointer {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				embedded = append(embedded, ft)
				continue
			}
		}
		if !sf.IsExported() {
			continue
		}

		f := &field{typ: sf.Type, goKey: sf.Name, wire: strcase.ToSnake(sf.Name)}
		if name != "" {
			f.goKey, f.wire = name, name
		}
		if _, dup := fs.byGo[f.goKey]; dup {
			continue
		}
		if _, dup := fs.byWire[f.wire]; dup {
			continue
		}
		fs.byGo[f.goKey] = f
		fs.byWire[f.wire] = f
	}
	for _, et := range embedded {
		collectFields(et, fs)
	}
}
