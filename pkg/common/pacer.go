// Package common holds small helpers shared by the client and the simulator.
package common

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces out repeated calls against a remote service, admitting one call
// per interval. The first call is admitted immediately.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer creates a Pacer for interval. A non-positive interval disables
// pacing entirely.
func NewPacer(interval time.Duration) *Pacer {
	if interval <= 0 {
		return &Pacer{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait blocks until the next call is admitted or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}
