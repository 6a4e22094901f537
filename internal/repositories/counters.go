package repositories

import (
	"fmt"

	"gorm.io/gorm"
)

// counterColumns whitelists the columns adjustCounter may touch.
var counterColumns = map[string]map[string]bool{
	"users":    {"review_count": true, "follower_count": true, "following_count": true, "friend_count": true, "points": true},
	"entities": {"review_count": true, "reaction_count": true, "comment_count": true, "view_count": true},
	"reviews":  {"view_count": true, "reaction_count": true, "comment_count": true},
	"comments": {"reaction_count": true},
}

// adjustCounter adds delta to table.column for one row, clamping at zero.
func adjustCounter(db *gorm.DB, table, column string, id uint, delta int64) error {
	if !counterColumns[table][column] {
		return fmt.Errorf("adjust counter: unknown column %s.%s", table, column)
	}
	if delta == 0 {
		return nil
	}

	expr := gorm.Expr(column+" + ?", delta)
	if delta < 0 {
		expr = gorm.Expr("CASE WHEN "+column+" + ? < 0 THEN 0 ELSE "+column+" + ? END", delta, delta)
	}
	res := db.Table(table).Where("id = ?", id).UpdateColumn(column, expr)
	if res.Error != nil {
		return fmt.Errorf("adjust %s.%s: %w", table, column, res.Error)
	}
	if res.RowsAffected == 0 {
		return mapErr(gorm.ErrRecordNotFound)
	}
	return nil
}
