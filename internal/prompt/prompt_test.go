package prompt

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestYes(t *testing.T) {
	for _, in := range []string{"y", "Y", "y\n", "Y\r\n"} {
		assert.True(t, Yes(in), "%q", in)
	}
	for _, in := range []string{"", "yes", "n", "N", "1", "yy", " y", "y \n", "\ty\n"} {
		assert.False(t, Yes(in), "%q", in)
	}
}

func TestTerminalReadsOneLinePerQuestion(t *testing.T) {
	var out bytes.Buffer
	term := NewTerminal(strings.NewReader("Y\nno\n"), &out)
	ctx := context.Background()

	ok, err := term.Confirm(ctx, "first? ")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = term.Confirm(ctx, "second? ")
	require.NoError(t, err)
	assert.False(t, ok)
	// input exhausted
	ok, err = term.Confirm(ctx, "third? ")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "first? second? third? \n", out.String())
}

func TestTerminalAnswerWithoutNewline(t *testing.T) {
	term := NewTerminal(strings.NewReader("y"), &bytes.Buffer{})
	ok, err := term.Confirm(context.Background(), "? ")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTerminalCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	_, err := NewTerminal(strings.NewReader("y\n"), &out).Confirm(ctx, "? ")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, out.String())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("closed") }

func TestTerminalWriteError(t *testing.T) {
	_, err := NewTerminal(strings.NewReader("y\n"), failingWriter{}).Confirm(context.Background(), "? ")
	assert.ErrorContains(t, err, "write prompt")
}

func TestFixedFuncRecorder(t *testing.T) {
	ctx := context.Background()
	ok, _ := Fixed(true).Confirm(ctx, "")
	assert.True(t, ok)
	ok, _ = Fixed(false).Confirm(ctx, "")
	assert.False(t, ok)

	rec := &Recorder{Confirmer: Func(func(_ context.Context, q string) (bool, error) {
		return q == "go?", nil
	})}
	ok, err := rec.Confirm(ctx, "go?")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = rec.Confirm(ctx, "stop?")
	assert.False(t, ok)
	assert.Equal(t, []string{"go?", "stop?"}, rec.Questions())
}
