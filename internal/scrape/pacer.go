package scrape

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RatePacer spaces request starts at least MinDelay apart. One RatePacer is
// shared by every caller that talks to the same server.
type RatePacer struct {
	limiter  *rate.Limiter
	minDelay time.Duration
}

func NewRatePacer(minDelay time.Duration) *RatePacer {
	return &RatePacer{
		limiter:  rate.NewLimiter(rate.Every(minDelay), 1),
		minDelay: minDelay,
	}
}

func (p *RatePacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

func (p *RatePacer) MinDelay() time.Duration { return p.minDelay }
