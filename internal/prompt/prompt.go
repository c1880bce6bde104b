// Package prompt obtains yes/no confirmations. The cache coordinator decides
// when to ask; a Confirmer decides how.
package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Confirmer answers a yes/no question.
type Confirmer interface {
	Confirm(ctx context.Context, question string) (bool, error)
}

// Func adapts a function to Confirmer.
type Func func(ctx context.Context, question string) (bool, error)

// Confirm calls f.
func (f Func) Confirm(ctx context.Context, question string) (bool, error) { return f(ctx, question) }

// Fixed always gives the same answer.
type Fixed bool

// Confirm returns the fixed answer.
func (f Fixed) Confirm(context.Context, string) (bool, error) { return bool(f), nil }

// Yes reports whether answer accepts: only "y" or "Y", optionally followed by
// the line terminator, does.
func Yes(answer string) bool {
	return strings.EqualFold(strings.TrimRight(answer, "\r\n"), "y")
}

// Terminal writes the question to Out and reads one line from In.
type Terminal struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
}

// NewTerminal reads answers from in and writes questions to out.
func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{in: bufio.NewReader(in), out: out}
}

// Confirm asks question. End of input counts as a refusal.
func (t *Terminal) Confirm(ctx context.Context, question string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := fmt.Fprint(t.out, question); err != nil {
		return false, fmt.Errorf("write prompt: %w", err)
	}
	line, err := t.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("read answer: %w", err)
	}
	if errors.Is(err, io.EOF) && line == "" {
		_, _ = fmt.Fprintln(t.out)
	}
	return Yes(line), nil
}

// Recorder wraps a Confirmer and keeps the questions it was asked.
type Recorder struct {
	Confirmer
	mu        sync.Mutex
	questions []string
}

// Confirm records question and delegates.
func (r *Recorder) Confirm(ctx context.Context, question string) (bool, error) {
	r.mu.Lock()
	r.questions = append(r.questions, question)
	r.mu.Unlock()
	return r.Confirmer.Confirm(ctx, question)
}

// Questions returns the questions asked so far.
func (r *Recorder) Questions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.questions...)
}
