package category

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/anonto42/reviewinn/backend/internal/domain"
	"github.com/anonto42/reviewinn/backend/internal/models"
	"github.com/anonto42/reviewinn/backend/internal/repositories"
	"github.com/anonto42/reviewinn/backend/internal/repositories/testhelper"
)

type tree struct {
	professionals, healthcare, cardiology, custom *models.Category
}

func setup(t *testing.T, ai Suggester) (*Service, *gorm.DB, tree) {
	t.Helper()
	db := testhelper.SetupTestDB(t)
	var tr tree
	tr.professionals = testhelper.SeedCategory(t, db, nil, "Professionals", "professionals")
	tr.healthcare = testhelper.SeedCategory(t, db, tr.professionals, "Healthcare", "healthcare")
	tr.cardiology = testhelper.SeedCategory(t, db, tr.healthcare, "Cardiology", "cardiology")
	tr.custom = testhelper.SeedCategory(t, db, tr.professionals, "Custom", "custom")

	svc := NewService(
		repositories.NewPostgresCategoryRepository(db),
		repositories.NewTxManager(db),
		NewReadCache(time.Minute),
		ai,
	)
	return svc, db, tr
}

type fakeSuggester struct {
	out   *AISuggestion
	err   error
	calls int
}

func (f *fakeSuggester) Suggest(context.Context, string, []string) (*AISuggestion, error) {
	f.calls++
	return f.out, f.err
}

func TestAutocompleteDatabaseFirst(t *testing.T) {
	ai := &fakeSuggester{err: errors.New("unavailable")}
	svc, _, tr := setup(t, ai)
	ctx := context.Background()

	exact, err := svc.Autocomplete(ctx, "cardiology")
	require.NoError(t, err)
	assert.True(t, exact.IsExisting)
	assert.Equal(t, 100, exact.Confidence)
	assert.Equal(t, SourceExact, exact.Source)
	require.NotNil(t, exact.ExistingID)
	assert.Equal(t, tr.cardiology.ID, *exact.ExistingID)
	require.NotNil(t, exact.SuggestedParent)
	assert.Equal(t, "Healthcare", exact.SuggestedParent.Name)

	fuzzy, err := svc.Autocomplete(ctx, "cardio")
	require.NoError(t, err)
	assert.True(t, fuzzy.IsExisting)
	assert.Equal(t, "Cardiology", fuzzy.CorrectedName)
	assert.Equal(t, SourceFuzzy, fuzzy.Source)
	assert.GreaterOrEqual(t, fuzzy.Confidence, 70)
	assert.LessOrEqual(t, fuzzy.Confidence, 85)

	partial, err := svc.Autocomplete(ctx, "pediatric health")
	require.NoError(t, err)
	assert.True(t, partial.IsExisting)
	assert.Equal(t, "Healthcare", partial.CorrectedName)
	assert.Equal(t, 60, partial.Confidence)
	assert.Equal(t, SourcePartial, partial.Source)

	assert.Zero(t, ai.calls)

	manual, err := svc.Autocomplete(ctx, "quantum-chiropractic-xyz")
	require.NoError(t, err)
	assert.False(t, manual.IsExisting)
	assert.Equal(t, 50, manual.Confidence)
	assert.Equal(t, SourceFallback, manual.Source)
	assert.Equal(t, "Quantum Chiropractic Xyz", manual.CorrectedName)
	assert.Equal(t, 1, ai.calls)
}

func TestAutocompleteWithoutAI(t *testing.T) {
	svc, _, _ := setup(t, nil)

	got, err := svc.Autocomplete(context.Background(), "quantum-chiropractic-xyz")
	require.NoError(t, err)
	assert.Equal(t, SourceFallback, got.Source)
	assert.Equal(t, 50, got.Confidence)

	_, err = svc.Autocomplete(context.Background(), "   ")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestAutocompleteAIFallback(t *testing.T) {
	ai := &fakeSuggester{out: &AISuggestion{CorrectedName: "quantum chiropractic", SuggestedParent: "Healthcare", Confidence: 99}}
	svc, _, tr := setup(t, ai)

	got, err := svc.Autocomplete(context.Background(), "quantm chiropractc")
	require.NoError(t, err)
	assert.Equal(t, SourceAI, got.Source)
	assert.Equal(t, "Quantum Chiropractic", got.CorrectedName)
	assert.False(t, got.IsExisting)
	assert.Equal(t, 90, got.Confidence)
	require.NotNil(t, got.SuggestedParent)
	assert.Equal(t, tr.healthcare.ID, got.SuggestedParent.ID)
}

func TestCreatePathAndLevel(t *testing.T) {
	svc, _, tr := setup(t, nil)
	ctx := context.Background()

	child, err := svc.Create(ctx, models.CreateCategoryRequest{Name: "Heart & Vascular", ParentID: &tr.cardiology.ID}, nil)
	require.NoError(t, err)
	assert.Equal(t, "heart-and-vascular", child.Slug)
	assert.Equal(t, tr.cardiology.Path+"."+child.Slug, child.Path)
	assert.Equal(t, tr.cardiology.Level+1, child.Level)

	_, err = svc.Create(ctx, models.CreateCategoryRequest{Name: "heart and vascular", ParentID: &tr.cardiology.ID}, nil)
	assert.ErrorIs(t, err, domain.ErrConflict)

	root, err := svc.Create(ctx, models.CreateCategoryRequest{Name: "Places"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "places", root.Path)
	assert.Equal(t, 1, root.Level)

	missing := uint(9999)
	_, err = svc.Create(ctx, models.CreateCategoryRequest{Name: "Orphan", ParentID: &missing}, nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateInvalidatesCache(t *testing.T) {
	svc, _, _ := setup(t, nil)
	ctx := context.Background()

	roots, err := svc.Roots(ctx)
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Positive(t, svc.cache.Len())

	_, err = svc.Create(ctx, models.CreateCategoryRequest{Name: "Products"}, nil)
	require.NoError(t, err)

	roots, err = svc.Roots(ctx)
	require.NoError(t, err)
	assert.Len(t, roots, 2)
}

func TestCreateCustom(t *testing.T) {
	svc, _, tr := setup(t, nil)
	ctx := context.Background()

	c, created, err := svc.CreateCustom(ctx, models.CreateCustomCategoryRequest{Name: "dog grooming", ParentCustomID: tr.custom.ID}, 7)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "Dog Grooming", c.Name)
	assert.Equal(t, tr.custom.Level+1, c.Level)
	assert.Equal(t, "professionals.custom.dog-grooming", c.Path)
	require.NotNil(t, c.CreatedByUserID)
	assert.Equal(t, uint(7), *c.CreatedByUserID)

	again, created, err := svc.CreateCustom(ctx, models.CreateCustomCategoryRequest{Name: "Dog  Grooming", ParentCustomID: tr.custom.ID}, 8)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, c.ID, again.ID)

	_, _, err = svc.CreateCustom(ctx, models.CreateCustomCategoryRequest{Name: "Cats", ParentCustomID: tr.healthcare.ID}, 7)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestDelete(t *testing.T) {
	svc, db, tr := setup(t, nil)
	ctx := context.Background()

	_, err := svc.Delete(ctx, tr.healthcare.ID, false)
	assert.ErrorIs(t, err, domain.ErrConflict)

	testhelper.SeedEntity(t, db, "Heart Clinic", tr.professionals, tr.cardiology)
	_, err = svc.Delete(ctx, tr.healthcare.ID, true)
	assert.ErrorIs(t, err, domain.ErrConflict)

	removed, err := svc.Delete(ctx, tr.custom.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = svc.Get(ctx, tr.custom.ID, false, false)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteCascade(t *testing.T) {
	svc, _, tr := setup(t, nil)
	ctx := context.Background()

	removed, err := svc.Delete(ctx, tr.healthcare.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	children, err := svc.Children(ctx, tr.professionals.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "Custom", children[0].Name)
}

func TestBreadcrumbAndGet(t *testing.T) {
	svc, _, tr := setup(t, nil)
	ctx := context.Background()

	crumbs, err := svc.Breadcrumb(ctx, tr.cardiology.ID)
	require.NoError(t, err)
	require.Len(t, crumbs, 3)
	assert.Equal(t, []string{"professionals", "healthcare", "cardiology"}, []string{crumbs[0].Slug, crumbs[1].Slug, crumbs[2].Slug})
	assert.Equal(t, 3, crumbs[2].Level)

	node, err := svc.Get(ctx, tr.healthcare.ID, true, true)
	require.NoError(t, err)
	require.Len(t, node.Children, 1)
	assert.Equal(t, tr.cardiology.ID, node.Children[0].ID)
	require.Len(t, node.Ancestors, 1)
	assert.Equal(t, tr.professionals.ID, node.Ancestors[0].ID)

	byPath, err := svc.ByPath(ctx, "professionals.healthcare.cardiology")
	require.NoError(t, err)
	assert.Equal(t, tr.cardiology.ID, byPath.ID)
}

func TestLeaves(t *testing.T) {
	svc, _, tr := setup(t, nil)
	ctx := context.Background()

	leaves, err := svc.Leaves(ctx, nil)
	require.NoError(t, err)
	names := make([]string, len(leaves))
	for i := range leaves {
		names[i] = leaves[i].Name
	}
	assert.ElementsMatch(t, []string{"Cardiology", "Custom"}, names)

	below, err := svc.Leaves(ctx, &tr.healthcare.ID)
	require.NoError(t, err)
	require.Len(t, below, 1)
	assert.Equal(t, "Cardiology", below[0].Name)
}

func TestSearchRanking(t *testing.T) {
	svc, db, tr := setup(t, nil)
	testhelper.SeedCategory(t, db, tr.healthcare, "Pediatric Cardiology", "pediatric-cardiology")
	ctx := context.Background()

	hits, err := svc.Search(ctx, "Cardiology", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "Cardiology", hits[0].Name)
	assert.Equal(t, matchExact, hits[0].MatchType)
	assert.Equal(t, matchContains, hits[1].MatchType)
	assert.Len(t, hits[0].Breadcrumb, 3)

	hits, err = svc.Search(ctx, "card", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, matchPrefix, hits[0].MatchType)

	_, err = svc.Search(ctx, "", 10)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestSlugify(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"Cardiology":          "cardiology",
		"  Food & Drink ":     "food-and-drink",
		"Doctors / Dentists!": "doctors-dentists",
		"Café Owners":         "café-owners",
		"!!!":                 "",
	}
	for in, want := range tests {
		assert.Equal(t, want, Slugify(in), in)
	}
}

func TestTitleCase(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "Quantum Chiropractic Xyz", TitleCase("quantum-chiropractic-xyz"))
	assert.Equal(t, "Dog Grooming", TitleCase("DOG_grooming"))
}
