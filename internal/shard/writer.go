package shard

import (
	"bufio"
	"fmt"
	"io"
)

// Writer streams cells to a shard as they are produced. Every line is flushed
// immediately so an interrupted sweep leaves a readable, if short, file.
type Writer struct {
	dst       io.WriteCloser
	buf       *bufio.Writer
	lines     int
	survivors int
	closed    bool
}

// NewWriter wraps dst; Close closes it.
func NewWriter(dst io.WriteCloser) *Writer {
	return &Writer{dst: dst, buf: bufio.NewWriter(dst)}
}

// WriteCell appends the line of cell (i, x).
func (w *Writer) WriteCell(i, x int, energies []float64) error {
	if w.closed {
		return fmt.Errorf("write cell (%d, %d): shard closed", i, x)
	}
	if _, err := w.buf.WriteString(FormatLine(energies)); err != nil {
		return fmt.Errorf("write cell (%d, %d): %w", i, x, err)
	}
	if err := w.buf.WriteByte('\n'); err != nil {
		return fmt.Errorf("write cell (%d, %d): %w", i, x, err)
	}
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("write cell (%d, %d): %w", i, x, err)
	}
	w.lines++
	w.survivors += len(energies)
	return nil
}

// Lines returns the number of cells written.
func (w *Writer) Lines() int { return w.lines }

// Survivors returns the number of energies written.
func (w *Writer) Survivors() int { return w.survivors }

// Close flushes and closes the destination.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.buf.Flush(); err != nil {
		_ = w.dst.Close()
		return err
	}
	return w.dst.Close()
}
