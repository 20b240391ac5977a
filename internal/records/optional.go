// Package records defines the raw input records read from the song catalog and
// the session logs.
//
// Every field of an input record is optional. A field that is absent, JSON
// null, or of an unusable shape decodes to the zero value with Valid=false, and
// the extractors project it as a null column instead of failing the record.
// Numeric fields also accept numeric strings ("10") and string fields accept
// bare numbers (10), since the log producers disagree on both.
package records

import (
	"bytes"
	"strconv"

	"github.com/goccy/go-json"
)

var null = []byte("null")

// OptString is a nullable string.
type OptString struct {
	Value string
	Valid bool
}

// OptInt64 is a nullable integer.
type OptInt64 struct {
	Value int64
	Valid bool
}

// OptFloat64 is a nullable float.
type OptFloat64 struct {
	Value float64
	Valid bool
}

// String returns a valid OptString.
func String(s string) OptString { return OptString{Value: s, Valid: true} }

// Int64 returns a valid OptInt64.
func Int64(v int64) OptInt64 { return OptInt64{Value: v, Valid: true} }

// Float64 returns a valid OptFloat64.
func Float64(v float64) OptFloat64 { return OptFloat64{Value: v, Valid: true} }

// Ptr returns nil for an invalid value.
func (o OptString) Ptr() *string {
	if !o.Valid {
		return nil
	}
	v := o.Value
	return &v
}

func (o OptInt64) Ptr() *int64 {
	if !o.Valid {
		return nil
	}
	v := o.Value
	return &v
}

func (o OptFloat64) Ptr() *float64 {
	if !o.Valid {
		return nil
	}
	v := o.Value
	return &v
}

func (o *OptString) UnmarshalJSON(b []byte) error {
	*o = OptString{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, null) {
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*o = String(s)
	case '{', '[':
		// objects and arrays do not project to a string column
	case 't', 'f':
		*o = String(string(b))
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return err
		}
		*o = String(n.String())
	}
	return nil
}

func (o *OptInt64) UnmarshalJSON(b []byte) error {
	*o = OptInt64{}
	s, ok, err := numeric(b)
	if err != nil || !ok {
		return err
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		*o = Int64(v)
		return nil
	}
	// Accept "1541990258796.0" style values as long as they are integral.
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int64(f)) {
		return nil
	}
	*o = Int64(int64(f))
	return nil
}

func (o *OptFloat64) UnmarshalJSON(b []byte) error {
	*o = OptFloat64{}
	s, ok, err := numeric(b)
	if err != nil || !ok {
		return err
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	*o = Float64(f)
	return nil
}

// numeric extracts the textual form of a JSON number or numeric string.
// ok is false for null, empty strings, and non-numeric shapes.
func numeric(b []byte) (string, bool, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, null) {
		return "", false, nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return "", false, err
		}
		s = string(bytes.TrimSpace([]byte(s)))
		return s, s != "", nil
	case '{', '[', 't', 'f':
		return "", false, nil
	default:
		return string(b), true, nil
	}
}
