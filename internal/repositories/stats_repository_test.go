package repositories_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anonto42/reviewinn/backend/internal/models"
	"github.com/anonto42/reviewinn/backend/internal/repositories"
	"github.com/anonto42/reviewinn/backend/internal/repositories/testhelper"
)

func TestPlatformStatsCountsActiveRows(t *testing.T) {
	db := testhelper.SetupTestDB(t)
	ada := testhelper.SeedUser(t, db, "ada")
	gone := testhelper.SeedUser(t, db, "gone")
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", gone.ID).Update("is_active", false).Error)

	root := testhelper.SeedCategory(t, db, nil, "Products", "products")
	leaf := testhelper.SeedCategory(t, db, root, "Phones", "phones")
	phone := testhelper.SeedEntity(t, db, "pixel", root, leaf)
	testhelper.SeedReview(t, db, ada, phone, 4.5)
	testhelper.SeedReview(t, db, gone, phone, 2)

	stats, err := repositories.NewPostgresStatsRepository(db).Platform(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Users)
	assert.Equal(t, int64(1), stats.Entities)
	assert.Equal(t, int64(2), stats.Reviews)
	assert.Equal(t, int64(2), stats.Categories)
}
