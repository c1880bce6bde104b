// Package shard reads and writes shard files: one line per grid cell in
// row-major order, each line a literal list of underground energies such as
// "[6935594.383751289, 4372686.094864153]" or "[]".
package shard

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"mute/internal/grid"
)

// ErrMalformed reports a shard line that is not a list of reals.
var ErrMalformed = errors.New("malformed shard line")

// LineError locates a malformed line.
type LineError struct {
	Line   int
	Reason string
}

func (e *LineError) Error() string {
	return fmt.Sprintf("%s %d: %s", ErrMalformed, e.Line, e.Reason)
}

func (e *LineError) Is(target error) bool { return target == ErrMalformed }

// FormatLine renders energies as a list literal without the trailing newline.
func FormatLine(energies []float64) string {
	var b strings.Builder
	b.Grow(2 + 20*len(energies))
	b.WriteByte('[')
	for n, v := range energies {
		if n > 0 {
			b.WriteString(", ")
		}
		b.WriteString(grid.FormatValue(v))
	}
	b.WriteByte(']')
	return b.String()
}

// ParseLine parses a list literal. A bare number is accepted as a
// single-element list; anything else is rejected.
func ParseLine(line string) ([]float64, error) {
	s := strings.TrimSpace(line)
	if s == "" {
		return nil, errors.New("empty line")
	}
	if s[0] != '[' {
		v, err := parseReal(s)
		if err != nil {
			return nil, err
		}
		return []float64{v}, nil
	}
	if s[len(s)-1] != ']' {
		return nil, errors.New("unterminated list")
	}
	body := strings.TrimSpace(s[1 : len(s)-1])
	if body == "" {
		return []float64{}, nil
	}
	fields := strings.Split(body, ",")
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := parseReal(strings.TrimSpace(f))
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func parseReal(s string) (float64, error) {
	if s == "" {
		return 0, errors.New("missing element")
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-', r == '+', r == 'e', r == 'E':
		case strings.ContainsRune("infaINFA", r):
		default:
			return 0, fmt.Errorf("unexpected %q", r)
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("bad number %q", s)
	}
	return v, nil
}
