package ascii

import (
	"bytes"
	"fmt"
	"io"
)

// Lines redraws a block of text in place using ANSI cursor movement
type Lines struct {
	atStart bool
	buf     []byte
	lines   int
	out     io.Writer
	width   int
}

func NewLines(w io.Writer) *Lines {
	return &Lines{
		buf:   []byte{},
		out:   w,
		width: termWidth(w),
	}
}

func (b *Lines) Add(add []byte) {
	b.buf = append(b.buf, add...)
}

func (b *Lines) Del() {
	b.buf = b.buf[:0]
}

// Flush replaces the previously written block with the buffered content
func (b *Lines) Flush() {
	b.Clear()
	if _, err := b.out.Write(b.buf); err != nil {
		return
	}
	b.lines = bytes.Count(b.buf, []byte("\n"))
	if b.width > 0 {
		// wrapped lines take extra rows
		for _, line := range bytes.Split(b.buf, []byte("\n")) {
			if len(line) > b.width {
				b.lines += (len(line) - 1) / b.width
			}
		}
	}
	b.buf = b.buf[:0]
	b.atStart = false
}

func (b *Lines) Clear() {
	if !b.atStart {
		b.Return()
	}
	fmt.Fprintf(b.out, "\033[0J")
	b.atStart = true
	b.lines = 0
}

func (b *Lines) Return() {
	if !b.atStart && b.lines > 0 {
		fmt.Fprintf(b.out, "\033[%dF", b.lines)
	}
	b.atStart = true
}
