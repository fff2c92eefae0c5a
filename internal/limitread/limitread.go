// Package limitread fails a read that exceeds a byte limit instead of truncating it
package limitread

import (
	"fmt"
	"io"

	"github.com/iiif-archive/iiifarchive/types"
)

// LimitRead returns ErrSizeLimitExceeded once more than Limit bytes are read from Reader
type LimitRead struct {
	Reader io.Reader
	Limit  int64
}

func (lr *LimitRead) Read(p []byte) (int, error) {
	if lr.Limit < 0 {
		return 0, fmt.Errorf("read limit exceeded: %w", types.ErrSizeLimitExceeded)
	}
	// one extra byte detects content beyond the limit
	if int64(len(p)) > lr.Limit+1 {
		p = p[:lr.Limit+1]
	}
	n, err := lr.Reader.Read(p)
	lr.Limit -= int64(n)
	if lr.Limit < 0 {
		return n, fmt.Errorf("read limit exceeded: %w", types.ErrSizeLimitExceeded)
	}
	return n, err
}
