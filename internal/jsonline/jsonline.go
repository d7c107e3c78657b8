// Package jsonline decodes and encodes single-JSON-value-per-line messages.
// hailerter reads its standard input with Scanner and DecodeLenient; the
// control sockets decode their requests with their own decoders.
package jsonline

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrTrailingData is returned when more than one JSON value is found where
// exactly one was expected.
var ErrTrailingData = errors.New("jsonline: trailing data after JSON value")

// Decode reads exactly one JSON value from src into dst, rejecting unknown
// object fields and any data left over after the value.
//
// Grounded on the teacher's pkg/jsonx.ParseJSONObject: a strict decoder that
// rejects malformed syntax, type mismatches, and unknown fields, each
// returned as a wrapped "decode:" error.
func Decode[T any](src io.Reader, dst *T) error {
	dec := json.NewDecoder(src)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode: %w", err)
	}

	var extra json.RawMessage
	if err := dec.Decode(&extra); err != io.EOF {
		if err == nil {
			return ErrTrailingData
		}
		return fmt.Errorf("decode: %w", err)
	}

	return nil
}

// DecodeLenient reads exactly one JSON value from src into dst like Decode,
// but tolerates unknown object fields instead of rejecting them.
//
// Grounded on the same pkg/jsonx.ParseJSONObject lineage as Decode, but for
// the monitoring message feed (§1/§6), whose schema this toolbox explicitly
// declines to own in full: unmatched fields are dropped, not fatal, so a
// message produced by a wider producer than this reader must still decode.
func DecodeLenient[T any](src io.Reader, dst *T) error {
	dec := json.NewDecoder(src)

	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode: %w", err)
	}

	var extra json.RawMessage
	if err := dec.Decode(&extra); err != io.EOF {
		if err == nil {
			return ErrTrailingData
		}
		return fmt.Errorf("decode: %w", err)
	}

	return nil
}

// Scanner reads successive whole lines, each expected to hold exactly one
// JSON value, from a stream such as hailerter's standard input. Next blocks
// until a whole line (or the end of the stream) is available; a partial line
// stays buffered until its newline arrives.
type Scanner struct {
	sc *bufio.Scanner
}

// NewScanner wraps r with a generous line buffer (monitoring payloads with a
// large `location` object are still just one line).
func NewScanner(r io.Reader) *Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	return &Scanner{sc: sc}
}

// Next returns the next line's bytes, or false at EOF. Scanner errors (e.g.
// a line longer than the buffer) are surfaced via Err.
func (s *Scanner) Next() ([]byte, bool) {
	if !s.sc.Scan() {
		return nil, false
	}
	return s.sc.Bytes(), true
}

// Err returns the first non-EOF error encountered by Next.
func (s *Scanner) Err() error { return s.sc.Err() }

// Encode writes v as a single JSON line terminated with '\n'.
func Encode(w io.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}
