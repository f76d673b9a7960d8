// Package debug has helpers producing human readable dumps for debug reports.
package debug

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"
)

// maxTextLen limits length of text values in dumps.
const maxTextLen = 64

// TreeWriter accumulates indented lines describing tree like structures.
type TreeWriter struct {
	w      *strings.Builder
	indent string
}

// NewTreeWriter returns writer indenting every level with two spaces.
func NewTreeWriter() *TreeWriter {
	return &TreeWriter{
		w:      &strings.Builder{},
		indent: "  ",
	}
}

func (tw *TreeWriter) String() string {
	return tw.w.String()
}

// WriteTo implements io.WriterTo so the dump could be stored directly.
func (tw *TreeWriter) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, tw.w.String())
	return int64(n), err
}

func (tw *TreeWriter) pad(depth int) {
	for range depth {
		tw.w.WriteString(tw.indent)
	}
}

// Line writes formatted line at depth.
func (tw *TreeWriter) Line(depth int, format string, args ...any) {
	tw.pad(depth)
	fmt.Fprintf(tw.w, format, args...)
	tw.w.WriteByte('\n')
}

// TextBlock writes labeled text value at depth. Long values are shortened.
func (tw *TreeWriter) TextBlock(depth int, label, value string) {
	tw.pad(depth)
	tw.w.WriteString(label)
	tw.w.WriteString(": ")
	tw.w.WriteString(encodeText(value))
	tw.w.WriteByte('\n')
}

func encodeText(raw string) string {
	if raw == "" {
		return raw
	}
	if utf8.RuneCountInString(raw) > maxTextLen {
		runes := []rune(raw)
		return strconv.Quote(string(runes[:maxTextLen])) + "..."
	}
	return strconv.Quote(raw)
}
