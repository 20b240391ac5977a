// Package json decodes newline-delimited JSON (NDJSON) inputs into typed
// records.
//
// It is deliberately forgiving at the line level:
//
//   - Every non-blank line must hold exactly one JSON object:
//     {"song_id":"S1","title":"a"}
//     {"song_id":"S2","title":"b"}
//   - A line that is not a valid object is reported through onParseErr with its
//     1-based line number and skipped; decoding continues with the next line.
//   - I/O errors and context cancellation are fatal and returned.
//
// Field-level leniency (numbers as strings, nulls) is the record types' job,
// see package records.
package json

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/goccy/go-json"
)

// ParseError describes one malformed input line.
type ParseError struct {
	Source string
	Line   int
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %v", e.Source, e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

var errNotObject = errors.New("not a JSON object")

const readerBuf = 256 << 10

// Stats summarizes one decoded input.
type Stats struct {
	Lines   int // non-blank lines seen
	Decoded int
	Errors  int
}

// Decode reads r line by line, unmarshals each object into a T and hands it to
// emit. source labels parse errors (usually the file path).
func Decode[T any](
	ctx context.Context,
	r io.Reader,
	source string,
	emit func(T),
	onParseErr func(*ParseError),
) (Stats, error) {
	var st Stats
	br := bufio.NewReaderSize(r, readerBuf)
	lineNo := 0

	for {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		line, readErr := br.ReadBytes('\n')
		if len(line) > 0 {
			lineNo++
			if obj := bytes.TrimSpace(line); len(obj) > 0 {
				st.Lines++
				var v T
				err := decodeLine(obj, &v)
				if err != nil {
					st.Errors++
					if onParseErr != nil {
						onParseErr(&ParseError{Source: source, Line: lineNo, Err: err})
					}
				} else {
					st.Decoded++
					emit(v)
				}
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return st, nil
			}
			return st, fmt.Errorf("json parser: read %s: %w", source, readErr)
		}
	}
}

// DecodeAll is a helper for tests and small inputs; parse errors are dropped.
func DecodeAll[T any](ctx context.Context, r io.Reader) ([]T, error) {
	var out []T
	_, err := Decode(ctx, r, "input", func(v T) { out = append(out, v) }, nil)
	return out, err
}

func decodeLine(obj []byte, v any) error {
	if obj[0] != '{' {
		return errNotObject
	}
	if err := json.Unmarshal(obj, v); err != nil {
		return fmt.Errorf("json parser: decode: %w", err)
	}
	return nil
}
