// Package jobs runs the background maintenance loops under a suture
// supervisor: notification expiry, counter repair and in-memory store sweeps.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/anonto42/reviewinn/backend/internal/metrics"
	"github.com/anonto42/reviewinn/backend/pkg/logging"
)

// Periodic calls run every interval until its context ends. A failing run is
// logged and counted; the loop keeps going.
type Periodic struct {
	name       string
	interval   time.Duration
	runOnStart bool
	run        func(ctx context.Context) error
	log        zerolog.Logger
}

// NewPeriodic creates a periodic service. It panics on a non-positive
// interval.
func NewPeriodic(name string, interval time.Duration, runOnStart bool, run func(ctx context.Context) error) *Periodic {
	if interval <= 0 {
		panic(fmt.Sprintf("jobs: %s: interval must be positive", name))
	}
	return &Periodic{
		name:       name,
		interval:   interval,
		runOnStart: runOnStart,
		run:        run,
		log:        logging.With("jobs").With().Str("job", name).Logger(),
	}
}

// Serve implements suture.Service.
func (p *Periodic) Serve(ctx context.Context) error {
	if p.runOnStart {
		p.once(ctx)
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.once(ctx)
		}
	}
}

func (p *Periodic) once(ctx context.Context) {
	start := time.Now()
	err := p.run(ctx)
	metrics.RecordJob(p.name, err)
	if err != nil {
		if ctx.Err() == nil {
			p.log.Error().Err(err).Dur("duration", time.Since(start)).Msg("job failed")
		}
		return
	}
	p.log.Debug().Dur("duration", time.Since(start)).Msg("job finished")
}

func (p *Periodic) String() string { return p.name }
