// Package throttle paces sequential requests to a remote server
package throttle

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/iiif-archive/iiifarchive/types"
)

// Throttle spaces calls to Wait at least delay apart.
// A nil Throttle never waits.
type Throttle struct {
	delay   time.Duration
	limiter *rate.Limiter
}

// New returns a Throttle, or nil when delay is not positive
func New(delay time.Duration) *Throttle {
	if delay <= 0 {
		return nil
	}
	return &Throttle{
		delay:   delay,
		limiter: rate.NewLimiter(rate.Every(delay), 1),
	}
}

// Delay returns the configured spacing
func (t *Throttle) Delay() time.Duration {
	if t == nil {
		return 0
	}
	return t.delay
}

// Wait blocks until the next request is allowed, the first call returns immediately
func (t *Throttle) Wait(ctx context.Context) error {
	if t == nil {
		return nil
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %w", types.ErrCanceled, err)
	}
	return nil
}
