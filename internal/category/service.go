// Package category resolves the unified category tree: reads, breadcrumbs,
// search, creation of official and custom nodes, and database-first
// autocomplete with an optional AI fallback.
package category

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/anonto42/reviewinn/backend/internal/domain"
	"github.com/anonto42/reviewinn/backend/internal/models"
	"github.com/anonto42/reviewinn/backend/internal/repositories"
	"github.com/anonto42/reviewinn/backend/pkg/logging"
)

// Crumb is one step of a breadcrumb.
type Crumb struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Level int    `json:"level"`
}

func crumbOf(c *models.Category) Crumb {
	return Crumb{ID: c.ID, Name: c.Name, Slug: c.Slug, Level: c.Level}
}

// Node is a category with optional children and ancestors.
type Node struct {
	models.Category
	Children  []models.Category `json:"children,omitempty"`
	Ancestors []Crumb           `json:"ancestors,omitempty"`
}

// SearchHit is a search result with its breadcrumb.
type SearchHit struct {
	models.Category
	Breadcrumb []Crumb `json:"breadcrumb"`
	MatchType  string  `json:"match_type"`
}

type Service struct {
	repo  repositories.CategoryRepository
	tx    *repositories.TxManager
	cache *ReadCache
	ai    Suggester
	log   zerolog.Logger
}

// NewService creates the resolver. cache and ai may be nil.
func NewService(repo repositories.CategoryRepository, tx *repositories.TxManager, cache *ReadCache, ai Suggester) *Service {
	return &Service{repo: repo, tx: tx, cache: cache, ai: ai, log: logging.With("category")}
}

func (s *Service) invalidate() {
	if s.cache != nil {
		s.cache.Flush()
	}
}

func (s *Service) Roots(ctx context.Context) ([]models.Category, error) {
	return cached(s.cache, "roots", func() ([]models.Category, error) {
		return s.repo.Roots(ctx)
	})
}

func (s *Service) Children(ctx context.Context, parentID uint) ([]models.Category, error) {
	return cached(s.cache, fmt.Sprintf("children:%d", parentID), func() ([]models.Category, error) {
		if _, err := s.repo.GetByID(ctx, parentID); err != nil {
			return nil, err
		}
		return s.repo.Children(ctx, parentID)
	})
}

// Leaves returns every leaf, or only those below rootID.
func (s *Service) Leaves(ctx context.Context, rootID *uint) ([]models.Category, error) {
	key := "leaves:all"
	if rootID != nil {
		key = fmt.Sprintf("leaves:%d", *rootID)
	}
	return cached(s.cache, key, func() ([]models.Category, error) {
		rootPath := ""
		if rootID != nil {
			root, err := s.repo.GetByID(ctx, *rootID)
			if err != nil {
				return nil, err
			}
			rootPath = root.Path
		}
		return s.repo.Leaves(ctx, rootPath)
	})
}

// Get returns a node, optionally with its children and ancestors.
func (s *Service) Get(ctx context.Context, id uint, withChildren, withAncestors bool) (*Node, error) {
	return cached(s.cache, fmt.Sprintf("node:%d:%t:%t", id, withChildren, withAncestors), func() (*Node, error) {
		c, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		node := &Node{Category: *c}
		if withChildren {
			if node.Children, err = s.repo.Children(ctx, id); err != nil {
				return nil, err
			}
		}
		if withAncestors {
			crumbs, err := s.breadcrumb(ctx, c)
			if err != nil {
				return nil, err
			}
			node.Ancestors = crumbs[:len(crumbs)-1]
		}
		return node, nil
	})
}

// ByPath looks a node up by its dotted slug path.
func (s *Service) ByPath(ctx context.Context, path string) (*models.Category, error) {
	path = strings.Trim(strings.ToLower(path), ". /")
	return cached(s.cache, "path:"+path, func() (*models.Category, error) {
		return s.repo.GetByPath(ctx, path)
	})
}

// Breadcrumb returns the chain from the root down to id, inclusive.
func (s *Service) Breadcrumb(ctx context.Context, id uint) ([]Crumb, error) {
	return cached(s.cache, fmt.Sprintf("crumbs:%d", id), func() ([]Crumb, error) {
		c, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return s.breadcrumb(ctx, c)
	})
}

func (s *Service) breadcrumb(ctx context.Context, c *models.Category) ([]Crumb, error) {
	parts := strings.Split(c.Path, ".")
	crumbs := make([]Crumb, 0, len(parts))
	for i := 1; i < len(parts); i++ {
		ancestor, err := s.repo.GetByPath(ctx, strings.Join(parts[:i], "."))
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, err
		}
		crumbs = append(crumbs, crumbOf(ancestor))
	}
	return append(crumbs, crumbOf(c)), nil
}

func (s *Service) Questions(ctx context.Context, id uint) ([]models.CategoryQuestion, error) {
	return cached(s.cache, fmt.Sprintf("questions:%d", id), func() ([]models.CategoryQuestion, error) {
		if _, err := s.repo.GetByID(ctx, id); err != nil {
			return nil, err
		}
		return s.repo.Questions(ctx, id)
	})
}

// Create adds a node below req.ParentID (a root when nil).
func (s *Service) Create(ctx context.Context, req models.CreateCategoryRequest, userID *uint) (*models.Category, error) {
	name := strings.TrimSpace(req.Name)
	slug := Slugify(name)
	if slug == "" {
		return nil, domain.NewValidationError("name", "must contain a letter or digit")
	}

	c := &models.Category{
		Name:            name,
		Slug:            slug,
		ParentID:        req.ParentID,
		Path:            slug,
		Level:           1,
		SortOrder:       req.SortOrder,
		Description:     req.Description,
		Icon:            req.Icon,
		IsActive:        true,
		CreatedByUserID: userID,
	}
	if req.ParentID != nil {
		parent, err := s.repo.GetByID(ctx, *req.ParentID)
		if err != nil {
			return nil, err
		}
		c.Path = parent.Path + "." + slug
		c.Level = parent.Level + 1
	}

	if _, err := s.repo.GetChildBySlug(ctx, req.ParentID, slug); err == nil {
		return nil, fmt.Errorf("category %q already exists here: %w", slug, domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	if err := s.repo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}
	s.invalidate()
	s.log.Info().Uint("category_id", c.ID).Str("path", c.Path).Msg("category created")
	return c, nil
}

// CreateCustom adds a user-defined child under a node named "Custom". An
// existing child with the same slug is returned instead, with created=false.
func (s *Service) CreateCustom(ctx context.Context, req models.CreateCustomCategoryRequest, userID uint) (*models.Category, bool, error) {
	parent, err := s.repo.GetByID(ctx, req.ParentCustomID)
	if err != nil {
		return nil, false, err
	}
	if !strings.EqualFold(parent.Name, models.CustomCategoryName) {
		return nil, false, domain.NewValidationError("parent_custom_id", "must reference a Custom category")
	}

	slug := Slugify(req.Name)
	if slug == "" {
		return nil, false, domain.NewValidationError("name", "must contain a letter or digit")
	}
	if existing, err := s.repo.GetChildBySlug(ctx, &parent.ID, slug); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, err
	}

	c := &models.Category{
		Name:            TitleCase(req.Name),
		Slug:            slug,
		ParentID:        &parent.ID,
		Path:            parent.Path + "." + slug,
		Level:           parent.Level + 1,
		IsActive:        true,
		CreatedByUserID: &userID,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			existing, lookupErr := s.repo.GetChildBySlug(ctx, &parent.ID, slug)
			if lookupErr == nil {
				return existing, false, nil
			}
		}
		return nil, false, fmt.Errorf("create custom category: %w", err)
	}
	s.invalidate()
	s.log.Info().Uint("category_id", c.ID).Uint("user_id", userID).Str("path", c.Path).Msg("custom category created")
	return c, true, nil
}

// Delete removes a node, and with cascade its whole subtree. Nodes referenced
// by an entity are never deleted.
func (s *Service) Delete(ctx context.Context, id uint, cascade bool) (int, error) {
	var removed int
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		c, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		subtree, err := s.repo.Subtree(ctx, c.Path)
		if err != nil {
			return err
		}
		if len(subtree) > 1 && !cascade {
			return fmt.Errorf("category has %d descendants, delete with cascade: %w", len(subtree)-1, domain.ErrConflict)
		}

		ids := make([]uint, len(subtree))
		for i := range subtree {
			ids[i] = subtree[i].ID
		}
		refs, err := s.repo.CountEntityReferences(ctx, ids)
		if err != nil {
			return err
		}
		if refs > 0 {
			return fmt.Errorf("category is used by %d entities: %w", refs, domain.ErrConflict)
		}
		if err := s.repo.Delete(ctx, ids); err != nil {
			return err
		}
		removed = len(ids)
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.invalidate()
	s.log.Info().Uint("category_id", id).Int("removed", removed).Msg("category deleted")
	return removed, nil
}

const (
	matchExact    = "exact"
	matchPrefix   = "prefix"
	matchContains = "contains"
)

func matchRank(t string) int {
	switch t {
	case matchExact:
		return 0
	case matchPrefix:
		return 1
	default:
		return 2
	}
}

func classify(name, query string) string {
	n := strings.ToLower(name)
	switch {
	case n == query:
		return matchExact
	case strings.HasPrefix(n, query):
		return matchPrefix
	default:
		return matchContains
	}
}

// Search ranks case-insensitive substring matches exact > prefix > contains.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, domain.NewValidationError("q", "is required")
	}
	if limit <= 0 || limit > 50 {
		limit = 10
	}

	return cached(s.cache, fmt.Sprintf("search:%s:%d", q, limit), func() ([]SearchHit, error) {
		found, err := s.repo.SearchName(ctx, q, limit*3)
		if err != nil {
			return nil, err
		}
		hits := make([]SearchHit, len(found))
		for i := range found {
			hits[i] = SearchHit{Category: found[i], MatchType: classify(found[i].Name, q)}
		}
		sort.SliceStable(hits, func(i, j int) bool {
			ri, rj := matchRank(hits[i].MatchType), matchRank(hits[j].MatchType)
			if ri != rj {
				return ri < rj
			}
			if len(hits[i].Name) != len(hits[j].Name) {
				return len(hits[i].Name) < len(hits[j].Name)
			}
			return hits[i].Name < hits[j].Name
		})
		if len(hits) > limit {
			hits = hits[:limit]
		}
		for i := range hits {
			if hits[i].Breadcrumb, err = s.breadcrumb(ctx, &hits[i].Category); err != nil {
				return nil, err
			}
		}
		return hits, nil
	})
}
