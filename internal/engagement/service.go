package engagement

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/anonto42/reviewinn/backend/internal/metrics"
	"github.com/anonto42/reviewinn/backend/internal/repositories"
	"github.com/anonto42/reviewinn/backend/pkg/logging"
)

const reportRowsPerKind = 100

type Service struct {
	reviews  counterStore
	comments counterStore
	entities entityStore
	users    counterStore
	repo     repositories.EngagementRepository
	tx       *repositories.TxManager
	now      func() time.Time
	log      zerolog.Logger
}

func NewService(
	reviews, comments counterStore,
	entities entityStore,
	users counterStore,
	repo repositories.EngagementRepository,
	tx *repositories.TxManager,
) *Service {
	return &Service{
		reviews:  reviews,
		comments: comments,
		entities: entities,
		users:    users,
		repo:     repo,
		tx:       tx,
		now:      func() time.Time { return time.Now().UTC() },
		log:      logging.With("engagement"),
	}
}

// WithClock replaces the clock; used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Diff is one drifted counter.
type Diff struct {
	ID     uint  `json:"id"`
	Stored int64 `json:"stored"`
	Actual int64 `json:"actual"`
	Diff   int64 `json:"diff"`
}

func toDiffs(rows []repositories.CounterRow) []Diff {
	out := make([]Diff, len(rows))
	for i, r := range rows {
		out[i] = Diff{ID: r.ID, Stored: r.Stored, Actual: r.Actual, Diff: r.Stored - r.Actual}
	}
	return out
}

// KindReport summarizes one counter kind.
type KindReport struct {
	Total        int64  `json:"total"`
	Inconsistent int64  `json:"inconsistent"`
	Rows         []Diff `json:"rows"`
}

// Report is the result of a full consistency scan.
type Report struct {
	HealthScore  float64               `json:"health_score"`
	Total        int64                 `json:"total"`
	Inconsistent int64                 `json:"inconsistent"`
	Kinds        map[string]KindReport `json:"kinds"`
	GeneratedAt  time.Time             `json:"generated_at"`
}

// HealthScore is max(0, 100 - inconsistent/total*100), 100 for an empty set.
func HealthScore(inconsistent, total int64) float64 {
	if total == 0 {
		return 100
	}
	score := 100 - float64(inconsistent)/float64(total)*100
	if score < 0 {
		return 0
	}
	return score
}

// Report scans every counter kind and lists up to 100 drifted rows per kind.
func (s *Service) Report(ctx context.Context) (*Report, error) {
	now := s.now()
	rep := &Report{Kinds: make(map[string]KindReport), GeneratedAt: now}
	for _, kind := range repositories.CounterKinds() {
		total, err := s.repo.Total(ctx, kind)
		if err != nil {
			return nil, fmt.Errorf("report %s: %w", kind, err)
		}
		rows, inconsistent, err := s.repo.Mismatches(ctx, kind, now, reportRowsPerKind)
		if err != nil {
			return nil, fmt.Errorf("report %s: %w", kind, err)
		}
		rep.Kinds[kind] = KindReport{Total: total, Inconsistent: inconsistent, Rows: toDiffs(rows)}
		rep.Total += total
		rep.Inconsistent += inconsistent
	}
	rep.HealthScore = HealthScore(rep.Inconsistent, rep.Total)
	metrics.CounterHealthScore.Set(rep.HealthScore)

	if rep.Inconsistent > 0 {
		s.log.Warn().Int64("inconsistent", rep.Inconsistent).Float64("health_score", rep.HealthScore).Msg("counter drift detected")
	}
	return rep, nil
}

// RepairResult counts rewritten rows by owning table.
type RepairResult struct {
	Reviews      int64            `json:"reviews"`
	Comments     int64            `json:"comments"`
	Entities     int64            `json:"entities"`
	Users        int64            `json:"users"`
	ViewsUpdated int64            `json:"views_updated"`
	Ratings      int64            `json:"ratings"`
	ByKind       map[string]int64 `json:"by_kind"`
}

// Repair rewrites every counter and entity rating from the authoritative
// tables in a single transaction. Running it twice changes nothing the
// second time.
func (s *Service) Repair(ctx context.Context) (*RepairResult, error) {
	now := s.now()
	res := &RepairResult{ByKind: make(map[string]int64)}

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		for _, kind := range repositories.CounterKinds() {
			n, err := s.repo.Repair(ctx, kind, now)
			if err != nil {
				return err
			}
			res.ByKind[kind] = n
			switch {
			case strings.HasPrefix(kind, "review."):
				res.Reviews += n
			case strings.HasPrefix(kind, "comment."):
				res.Comments += n
			case strings.HasPrefix(kind, "entity."):
				res.Entities += n
			case strings.HasPrefix(kind, "user."):
				res.Users += n
			}
			if strings.HasSuffix(kind, ".view_count") {
				res.ViewsUpdated += n
			}
		}
		n, err := s.repo.RepairRatings(ctx)
		if err != nil {
			return fmt.Errorf("repair ratings: %w", err)
		}
		res.Ratings = n
		return nil
	})
	if err != nil {
		return nil, err
	}

	for kind, n := range res.ByKind {
		if n > 0 {
			metrics.CounterRowsRepaired.WithLabelValues(kind).Add(float64(n))
		}
	}
	s.log.Info().
		Int64("reviews", res.Reviews).
		Int64("comments", res.Comments).
		Int64("entities", res.Entities).
		Int64("users", res.Users).
		Msg("counters repaired")
	return res, nil
}

// SampleMismatch is a drifted row found by ValidateSample.
type SampleMismatch struct {
	Kind string `json:"kind"`
	Diff
}

// SampleResult is a quick spot-check of the counters.
type SampleResult struct {
	Checked      int              `json:"checked"`
	Inconsistent int              `json:"inconsistent"`
	HealthScore  float64          `json:"health_score"`
	Mismatches   []SampleMismatch `json:"mismatches"`
}

// ValidateSample checks n random rows of every counter kind.
func (s *Service) ValidateSample(ctx context.Context, n int) (*SampleResult, error) {
	if n <= 0 {
		n = 10
	}
	now := s.now()
	res := &SampleResult{Mismatches: []SampleMismatch{}}
	for _, kind := range repositories.CounterKinds() {
		rows, err := s.repo.Sample(ctx, kind, n, now)
		if err != nil {
			return nil, fmt.Errorf("sample %s: %w", kind, err)
		}
		res.Checked += len(rows)
		for _, d := range toDiffs(rows) {
			if d.Diff != 0 {
				res.Inconsistent++
				res.Mismatches = append(res.Mismatches, SampleMismatch{Kind: kind, Diff: d})
			}
		}
	}
	res.HealthScore = HealthScore(int64(res.Inconsistent), int64(res.Checked))
	return res, nil
}
