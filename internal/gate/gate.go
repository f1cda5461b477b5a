// Package gate paces operations the platform throttles across the whole
// process, such as logins and gift accepts.
package gate

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Gate admits one caller per delay window. The window opens at
// acquire-success, so a slow caller does not hold the next one back
// beyond the configured delay.
type Gate struct {
	lim *rate.Limiter
}

// New builds a gate with the given spacing between admissions.
// A zero or negative delay disables pacing.
func New(delay time.Duration) *Gate {
	return &Gate{lim: rate.NewLimiter(rate.Every(delay), 1)}
}

// Acquire blocks until the gate admits the caller or ctx is cancelled.
// A cancelled wait leaves the gate untouched.
func (g *Gate) Acquire(ctx context.Context) error {
	return g.lim.Wait(ctx)
}
