package repositories

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"
)

// counterSpec describes one denormalized counter: the owning table, the stored
// column and a correlated subquery computing the authoritative value. Specs
// that depend on the current time take two bind args: true and now.
type counterSpec struct {
	table   string
	column  string
	actual  string
	timeArg bool
}

var counterSpecs = map[string]counterSpec{
	"review.comment_count": {
		table: "reviews", column: "comment_count",
		actual: "SELECT COUNT(*) FROM comments c WHERE c.review_id = reviews.id",
	},
	"review.reaction_count": {
		table: "reviews", column: "reaction_count",
		actual: "SELECT COUNT(*) FROM reactions x WHERE x.target_type = 'review' AND x.target_id = reviews.id",
	},
	"review.view_count": {
		table: "reviews", column: "view_count", timeArg: true,
		actual: "SELECT COUNT(*) FROM review_views v WHERE v.content_id = reviews.id AND v.is_valid = ? AND (v.expires_at IS NULL OR v.expires_at > ?)",
	},
	"comment.reaction_count": {
		table: "comments", column: "reaction_count",
		actual: "SELECT COUNT(*) FROM reactions x WHERE x.target_type = 'comment' AND x.target_id = comments.id",
	},
	"entity.review_count": {
		table: "entities", column: "review_count",
		actual: "SELECT COUNT(*) FROM reviews r WHERE r.entity_id = entities.id",
	},
	"entity.reaction_count": {
		table: "entities", column: "reaction_count",
		actual: "SELECT COUNT(*) FROM reactions x JOIN reviews r ON x.target_type = 'review' AND x.target_id = r.id WHERE r.entity_id = entities.id",
	},
	"entity.comment_count": {
		table: "entities", column: "comment_count",
		actual: "SELECT COUNT(*) FROM comments c JOIN reviews r ON c.review_id = r.id WHERE r.entity_id = entities.id",
	},
	"entity.view_count": {
		table: "entities", column: "view_count", timeArg: true,
		actual: "SELECT COUNT(*) FROM entity_views v WHERE v.content_id = entities.id AND v.is_valid = ? AND (v.expires_at IS NULL OR v.expires_at > ?)",
	},
	"user.review_count": {
		table: "users", column: "review_count",
		actual: "SELECT COUNT(*) FROM reviews r WHERE r.user_id = users.id",
	},
	"user.follower_count": {
		table: "users", column: "follower_count",
		actual: "SELECT COUNT(*) FROM follows f WHERE f.following_id = users.id",
	},
	"user.friend_count": {
		table: "users", column: "friend_count",
		actual: "SELECT COUNT(*) FROM circle_requests q WHERE q.status = 'accepted' AND (q.sender_id = users.id OR q.receiver_id = users.id)",
	},
	"user.following_count": {
		table: "users", column: "following_count",
		actual: "SELECT COUNT(*) FROM follows f WHERE f.follower_id = users.id",
	},
}

// CounterKinds lists every counter the engagement repository can check, sorted.
func CounterKinds() []string {
	kinds := make([]string, 0, len(counterSpecs))
	for k := range counterSpecs {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// CounterRow is a stored counter next to its authoritative value.
type CounterRow struct {
	ID     uint  `json:"id"`
	Stored int64 `json:"stored"`
	Actual int64 `json:"actual"`
}

// EngagementRepository compares and rewrites denormalized counters.
type EngagementRepository interface {
	Total(ctx context.Context, kind string) (int64, error)
	Mismatches(ctx context.Context, kind string, now time.Time, limit int) ([]CounterRow, int64, error)
	Sample(ctx context.Context, kind string, n int, now time.Time) ([]CounterRow, error)
	Repair(ctx context.Context, kind string, now time.Time) (int64, error)
	RepairRatings(ctx context.Context) (int64, error)
}

// PostgresEngagementRepository implements EngagementRepository with correlated subqueries.
type PostgresEngagementRepository struct {
	db *gorm.DB
}

// NewPostgresEngagementRepository creates a new PostgresEngagementRepository
func NewPostgresEngagementRepository(db *gorm.DB) *PostgresEngagementRepository {
	return &PostgresEngagementRepository{db: db}
}

func lookupSpec(kind string) (counterSpec, error) {
	spec, ok := counterSpecs[kind]
	if !ok {
		return counterSpec{}, fmt.Errorf("unknown counter kind %q", kind)
	}
	return spec, nil
}

func (s counterSpec) args(now time.Time) []interface{} {
	if s.timeArg {
		return []interface{}{true, now}
	}
	return nil
}

// rowsSQL selects (id, stored, actual) for every row of the owning table.
func (s counterSpec) rowsSQL() string {
	return fmt.Sprintf("SELECT id, %s AS stored, (%s) AS actual FROM %s", s.column, s.actual, s.table)
}

func (r *PostgresEngagementRepository) Total(ctx context.Context, kind string) (int64, error) {
	spec, err := lookupSpec(kind)
	if err != nil {
		return 0, err
	}
	var total int64
	err = conn(ctx, r.db).Table(spec.table).Count(&total).Error
	return total, err
}

// Mismatches returns up to limit rows whose stored value differs, plus the full mismatch count.
func (r *PostgresEngagementRepository) Mismatches(ctx context.Context, kind string, now time.Time, limit int) ([]CounterRow, int64, error) {
	spec, err := lookupSpec(kind)
	if err != nil {
		return nil, 0, err
	}
	db := conn(ctx, r.db)
	inner := "(" + spec.rowsSQL() + ") t WHERE t.stored <> t.actual"

	var count int64
	if err := db.Raw("SELECT COUNT(*) FROM "+inner, spec.args(now)...).Scan(&count).Error; err != nil {
		return nil, 0, fmt.Errorf("count %s mismatches: %w", kind, err)
	}
	if count == 0 {
		return nil, 0, nil
	}

	var rows []CounterRow
	args := append(spec.args(now), limit)
	if err := db.Raw("SELECT t.id, t.stored, t.actual FROM "+inner+" ORDER BY t.id LIMIT ?", args...).Scan(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("list %s mismatches: %w", kind, err)
	}
	return rows, count, nil
}

// Sample picks n random rows regardless of consistency.
func (r *PostgresEngagementRepository) Sample(ctx context.Context, kind string, n int, now time.Time) ([]CounterRow, error) {
	spec, err := lookupSpec(kind)
	if err != nil {
		return nil, err
	}
	var rows []CounterRow
	args := append(spec.args(now), n)
	err = conn(ctx, r.db).Raw(spec.rowsSQL()+" ORDER BY RANDOM() LIMIT ?", args...).Scan(&rows).Error
	return rows, err
}

// Repair rewrites drifted rows and returns how many changed.
func (r *PostgresEngagementRepository) Repair(ctx context.Context, kind string, now time.Time) (int64, error) {
	spec, err := lookupSpec(kind)
	if err != nil {
		return 0, err
	}
	sql := fmt.Sprintf("UPDATE %s SET %s = (%s) WHERE %s <> (%s)", spec.table, spec.column, spec.actual, spec.column, spec.actual)
	args := append(spec.args(now), spec.args(now)...)
	res := conn(ctx, r.db).Exec(sql, args...)
	if res.Error != nil {
		return 0, fmt.Errorf("repair %s: %w", kind, res.Error)
	}
	return res.RowsAffected, nil
}

// RepairRatings recomputes every entity's average rating.
func (r *PostgresEngagementRepository) RepairRatings(ctx context.Context) (int64, error) {
	res := conn(ctx, r.db).Exec(
		"UPDATE entities SET average_rating = COALESCE((SELECT AVG(r.overall_rating) FROM reviews r WHERE r.entity_id = entities.id), 0)",
	)
	return res.RowsAffected, res.Error
}
