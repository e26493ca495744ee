package rate

import (
	"context"
	"fmt"

	xrate "golang.org/x/time/rate"
)

// Limiter gates outbound API calls so we respect Gmail rate limits.
type Limiter interface {
	Wait(ctx context.Context) error
}

// PerSecond releases up to rps requests per second with a burst of the
// same size, so a run's first handful of calls proceeds immediately.
type PerSecond struct {
	limiter *xrate.Limiter
}

// NewPerSecond returns a limiter admitting rps requests per second.
func NewPerSecond(rps int) *PerSecond {
	if rps <= 0 {
		rps = 1
	}
	return &PerSecond{limiter: xrate.NewLimiter(xrate.Limit(rps), rps)}
}

// Wait blocks until a request may proceed or the context is canceled.
func (p *PerSecond) Wait(ctx context.Context) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate wait canceled: %w", err)
	}
	return nil
}

var _ Limiter = (*PerSecond)(nil)
