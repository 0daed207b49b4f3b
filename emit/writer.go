package emit

import (
	"bytes"
	"fmt"
)

// Writer accumulates indented source lines.
type Writer struct {
	buf    bytes.Buffer
	indent int
}

// NewWriter returns an empty writer.
func NewWriter() *Writer { return &Writer{} }

// Line writes one formatted line at the current indentation.
func (w *Writer) Line(format string, args ...any) {
	for i := 0; i < w.indent; i++ {
		w.buf.WriteByte('\t')
	}
	if len(args) == 0 {
		w.buf.WriteString(format)
	} else {
		fmt.Fprintf(&w.buf, format, args...)
	}
	w.buf.WriteByte('\n')
}

// Blank writes an empty line.
func (w *Writer) Blank() { w.buf.WriteByte('\n') }

// Raw writes s unchanged.
func (w *Writer) Raw(s string) { w.buf.WriteString(s) }

// Indent and Dedent change the indentation of following lines.
func (w *Writer) Indent() { w.indent++ }

func (w *Writer) Dedent() {
	if w.indent > 0 {
		w.indent--
	}
}

// Open writes a line and indents; Close dedents and writes a line.
func (w *Writer) Open(format string, args ...any) {
	w.Line(format, args...)
	w.Indent()
}

func (w *Writer) Close(format string, args ...any) {
	w.Dedent()
	w.Line(format, args...)
}

// Len returns the number of bytes written.
func (w *Writer) Len() int { return w.buf.Len() }

// Bytes returns the written source.
func (w *Writer) Bytes() []byte { return w.buf.Bytes() }

func (w *Writer) String() string { return w.buf.String() }
