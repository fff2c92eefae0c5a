// Package ascii is used to output ascii content to a terminal
package ascii

import (
	"io"
	"math"

	"golang.org/x/term"
)

// IsWriterTerminal reports whether w is attached to a terminal
func IsWriterTerminal(w io.Writer) bool {
	wFd, ok := w.(interface{ Fd() uintptr })
	//#nosec G115 false positive
	return ok && wFd.Fd() <= math.MaxInt && term.IsTerminal(int(wFd.Fd()))
}

// termWidth returns the column count of a terminal writer, or 0
func termWidth(w io.Writer) int {
	if !IsWriterTerminal(w) {
		return 0
	}
	//#nosec G115 checked by IsWriterTerminal
	width, _, err := term.GetSize(int(w.(interface{ Fd() uintptr }).Fd()))
	if err != nil {
		return 0
	}
	return width
}
