package category

import (
	"context"
	"strings"

	"github.com/anonto42/reviewinn/backend/internal/domain"
	"github.com/anonto42/reviewinn/backend/internal/models"
)

// Autocomplete sources.
const (
	SourceExact    = "database_exact"
	SourceFuzzy    = "database_fuzzy"
	SourcePartial  = "database_partial"
	SourceAI       = "ai_fallback"
	SourceFallback = "manual_fallback"
)

// Alternative is another existing category the input may refer to.
type Alternative struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
	Path string `json:"path"`
}

// Suggestion is the autocomplete answer for free-text category input.
type Suggestion struct {
	CorrectedName   string        `json:"corrected_name"`
	IsExisting      bool          `json:"is_existing"`
	ExistingID      *uint         `json:"existing_id,omitempty"`
	SuggestedParent *Crumb        `json:"suggested_parent,omitempty"`
	Confidence      int           `json:"confidence"`
	Source          string        `json:"source"`
	Alternatives    []Alternative `json:"alternatives"`
}

const (
	maxAlternatives = 5
	minWordLength   = 3
)

// Autocomplete resolves input against the database first: exact name,
// then substring, then per-word substring. Only when nothing matches is the
// AI suggester consulted; without it the title-cased input is returned.
func (s *Service) Autocomplete(ctx context.Context, input string) (*Suggestion, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, domain.NewValidationError("input", "is required")
	}
	lowered := strings.ToLower(input)

	exact, err := s.repo.FindByName(ctx, lowered)
	if err != nil {
		return nil, err
	}
	if len(exact) > 0 {
		return s.existing(ctx, &exact[0], 100, SourceExact, exact[1:])
	}

	fuzzy, err := s.repo.SearchName(ctx, lowered, 10)
	if err != nil {
		return nil, err
	}
	if len(fuzzy) > 0 {
		best := closest(fuzzy, lowered)
		return s.existing(ctx, best, fuzzyConfidence(lowered, best.Name), SourceFuzzy, without(fuzzy, best.ID))
	}

	var partial []models.Category
	seen := map[uint]bool{}
	for _, word := range strings.FieldsFunc(lowered, func(r rune) bool { return r == ' ' || r == '-' || r == '_' }) {
		if len([]rune(word)) < minWordLength {
			continue
		}
		found, err := s.repo.SearchName(ctx, word, maxAlternatives)
		if err != nil {
			return nil, err
		}
		for _, c := range found {
			if !seen[c.ID] {
				seen[c.ID] = true
				partial = append(partial, c)
			}
		}
	}
	if len(partial) > 0 {
		return s.existing(ctx, &partial[0], 60, SourcePartial, partial[1:])
	}

	if s.ai != nil {
		if sug, ok := s.fromAI(ctx, input); ok {
			return sug, nil
		}
	}

	return &Suggestion{
		CorrectedName: TitleCase(input),
		Confidence:    50,
		Source:        SourceFallback,
		Alternatives:  []Alternative{},
	}, nil
}

func (s *Service) existing(ctx context.Context, c *models.Category, confidence int, source string, others []models.Category) (*Suggestion, error) {
	id := c.ID
	sug := &Suggestion{
		CorrectedName: c.Name,
		IsExisting:    true,
		ExistingID:    &id,
		Confidence:    confidence,
		Source:        source,
		Alternatives:  alternatives(others),
	}
	if c.ParentID != nil {
		parent, err := s.repo.GetByID(ctx, *c.ParentID)
		if err == nil {
			crumb := crumbOf(parent)
			sug.SuggestedParent = &crumb
		}
	}
	return sug, nil
}

func (s *Service) fromAI(ctx context.Context, input string) (*Suggestion, bool) {
	roots, err := s.Roots(ctx)
	if err != nil {
		return nil, false
	}
	known := make([]string, len(roots))
	for i := range roots {
		known[i] = roots[i].Name
	}

	ai, err := s.ai.Suggest(ctx, input, known)
	if err != nil {
		return nil, false
	}

	sug := &Suggestion{
		CorrectedName: TitleCase(ai.CorrectedName),
		Confidence:    clamp(ai.Confidence, 50, 90),
		Source:        SourceAI,
		Alternatives:  []Alternative{},
	}
	if matches, err := s.repo.FindByName(ctx, ai.CorrectedName); err == nil && len(matches) > 0 {
		id := matches[0].ID
		sug.CorrectedName = matches[0].Name
		sug.IsExisting = true
		sug.ExistingID = &id
	}
	if ai.SuggestedParent != "" {
		if parents, err := s.repo.FindByName(ctx, ai.SuggestedParent); err == nil && len(parents) > 0 {
			crumb := crumbOf(&parents[0])
			sug.SuggestedParent = &crumb
		}
	}
	return sug, true
}

// closest prefers prefix matches, then the shortest name.
func closest(found []models.Category, input string) *models.Category {
	best := &found[0]
	for i := 1; i < len(found); i++ {
		c := &found[i]
		cp := strings.HasPrefix(strings.ToLower(c.Name), input)
		bp := strings.HasPrefix(strings.ToLower(best.Name), input)
		if (cp && !bp) || (cp == bp && len(c.Name) < len(best.Name)) {
			best = c
		}
	}
	return best
}

// fuzzyConfidence scales from 70 to 85 with the share of the name covered.
func fuzzyConfidence(input, name string) int {
	n := len([]rune(name))
	if n == 0 {
		return 70
	}
	covered := float64(len([]rune(input))) / float64(n)
	if covered > 1 {
		covered = 1
	}
	return clamp(70+int(covered*15+0.5), 70, 85)
}

func without(found []models.Category, id uint) []models.Category {
	out := make([]models.Category, 0, len(found))
	for _, c := range found {
		if c.ID != id {
			out = append(out, c)
		}
	}
	return out
}

func alternatives(cs []models.Category) []Alternative {
	if len(cs) > maxAlternatives {
		cs = cs[:maxAlternatives]
	}
	out := make([]Alternative, len(cs))
	for i, c := range cs {
		out[i] = Alternative{ID: c.ID, Name: c.Name, Path: c.Path}
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
