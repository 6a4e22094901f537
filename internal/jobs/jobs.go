package jobs

import (
	"context"
	"time"

	"github.com/anonto42/reviewinn/backend/internal/engagement"
	"github.com/anonto42/reviewinn/backend/pkg/logging"
)

type expirer interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

type repairer interface {
	Repair(ctx context.Context) (*engagement.RepairResult, error)
}

type limiterSweeper interface {
	Sweep(maxAge time.Duration) int
}

type codeSweeper interface {
	Sweep() int
}

// NotificationCleanup expires notifications past their expires_at.
func NotificationCleanup(svc expirer, interval time.Duration) *Periodic {
	return NewPeriodic("notification-cleanup", interval, true, func(ctx context.Context) error {
		n, err := svc.CleanupExpired(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			log := logging.With("jobs")
			log.Info().Int64("expired", n).Msg("notifications expired")
		}
		return nil
	})
}

// CounterRepair rewrites drifted engagement counters.
func CounterRepair(svc repairer, interval time.Duration) *Periodic {
	return NewPeriodic("counter-repair", interval, false, func(ctx context.Context) error {
		res, err := svc.Repair(ctx)
		if err != nil {
			return err
		}
		log := logging.With("jobs")
		log.Info().
			Int64("reviews", res.Reviews).
			Int64("entities", res.Entities).
			Int64("users", res.Users).
			Int64("ratings", res.Ratings).
			Msg("counters repaired")
		return nil
	})
}

// Sweep drops idle rate-limit keys and expired verification codes.
func Sweep(limiter limiterSweeper, codes codeSweeper, interval time.Duration) *Periodic {
	return NewPeriodic("memory-sweep", interval, false, func(context.Context) error {
		keys := limiter.Sweep(time.Hour)
		expired := codes.Sweep()
		if keys+expired > 0 {
			log := logging.With("jobs")
			log.Debug().Int("limiter_keys", keys).Int("codes", expired).Msg("in-memory stores swept")
		}
		return nil
	})
}
