package reaper

import (
	"context"
	"log"
	"time"

	"labelline/internal/engine"
)

// Reaper periodically reclaims claims whose holders went quiet. Reclaimed
// assets are broadcast by the lease manager itself, so the loop only has
// to drive the sweep.
type Reaper struct {
	Engine     engine.Engine
	Interval   time.Duration
	StaleAfter time.Duration
}

func New(e engine.Engine) *Reaper {
	r := &Reaper{Engine: e}
	if e.Config != nil {
		r.Interval = e.Config.SweepEvery()
		r.StaleAfter = e.Config.StaleAfter()
	}
	if r.Interval <= 0 {
		r.Interval = time.Minute
	}
	if r.StaleAfter <= 0 {
		r.StaleAfter = 30 * time.Minute
	}
	return r
}

// Run sweeps until the context is canceled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Reaper) sweep(ctx context.Context) {
	reclaimed, err := r.Engine.SweepStale(ctx, r.StaleAfter)
	if err != nil {
		log.Printf("reaper: sweep failed: %v", err)
		return
	}
	if len(reclaimed) > 0 {
		log.Printf("reaper: reclaimed %d stale claim(s)", len(reclaimed))
	}
}
