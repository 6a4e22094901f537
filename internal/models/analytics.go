package models

import "time"

// ViewAnalytics is the per-content rollup document kept in MongoDB.
type ViewAnalytics struct {
	ContentType string           `bson:"content_type" json:"content_type"`
	ContentID   uint             `bson:"content_id" json:"content_id"`
	TotalViews  int64            `bson:"total_views" json:"total_views"`
	UniqueUsers int64            `bson:"unique_users" json:"unique_users"`
	Daily       map[string]int64 `bson:"daily" json:"daily,omitempty"`
	LastViewAt  *time.Time       `bson:"last_view_at,omitempty" json:"last_view_at,omitempty"`
	UpdatedAt   time.Time        `bson:"updated_at" json:"updated_at"`
}

// DayKey is the bucket key used in Daily.
func DayKey(t time.Time) string { return t.UTC().Format("2006-01-02") }

// Window sums the daily buckets of the last days days, today included.
func (a *ViewAnalytics) Window(now time.Time, days int) int64 {
	var sum int64
	for i := 0; i < days; i++ {
		sum += a.Daily[DayKey(now.AddDate(0, 0, -i))]
	}
	return sum
}
