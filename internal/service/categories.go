package service

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/rumor-ml/homeledger/internal/domain"
	"github.com/rumor-ml/homeledger/internal/errs"
	"github.com/rumor-ml/homeledger/internal/store"
)

const maxCategoryNameLength = 120

// Categories manages the per-type budget categories.
type Categories struct {
	store *store.Store
	log   zerolog.Logger
}

func NewCategories(st *store.Store, log zerolog.Logger) *Categories {
	return &Categories{store: st, log: log.With().Str("component", "categories").Logger()}
}

// CategoryDTO is the API shape of a category.
type CategoryDTO struct {
	ID        string              `json:"id"`
	Name      string              `json:"name"`
	Type      domain.CategoryType `json:"type"`
	SortOrder int                 `json:"sortOrder"`
	Active    bool                `json:"active"`
}

// CreateCategoryRequest carries a new category.
type CreateCategoryRequest struct {
	Name      string              `json:"name"`
	Type      domain.CategoryType `json:"type"`
	SortOrder *int                `json:"sortOrder"`
	Active    *bool               `json:"active"`
}

// UpdateCategoryRequest carries a partial update; nil fields keep their
// current value.
type UpdateCategoryRequest struct {
	Name      *string `json:"name"`
	SortOrder *int    `json:"sortOrder"`
	Active    *bool   `json:"active"`
}

// List returns categories, optionally restricted to one type, ordered by
// type, sort order and name.
func (s *Categories) List(ctx context.Context, categoryType *domain.CategoryType) ([]CategoryDTO, error) {
	if categoryType != nil {
		if err := validateCategoryType(*categoryType); err != nil {
			return nil, err
		}
	}
	categories, err := s.store.Categories.List(ctx, categoryType)
	if err != nil {
		return nil, err
	}
	out := make([]CategoryDTO, 0, len(categories))
	for _, c := range categories {
		out = append(out, categoryDTO(c))
	}
	return out, nil
}

// Create adds a category. Names are unique per type ignoring case.
func (s *Categories) Create(ctx context.Context, req CreateCategoryRequest) (*CategoryDTO, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, errs.InvalidInput("name is required")
	}
	if len(name) > maxCategoryNameLength {
		return nil, errs.InvalidInput("name must be at most %d characters", maxCategoryNameLength)
	}
	if err := validateCategoryType(req.Type); err != nil {
		return nil, err
	}
	if req.SortOrder != nil && *req.SortOrder < 0 {
		return nil, errs.InvalidInput("sortOrder must not be negative")
	}

	var created domain.Category
	err := s.store.InTx(ctx, func(tx *store.Store) error {
		existing, err := tx.Categories.FindByTypeAndName(ctx, req.Type, name)
		if err != nil {
			return err
		}
		if existing != nil {
			return errs.InvalidInput("category already exists for type: %s", name)
		}

		created = domain.Category{
			ID:     store.NewID(),
			Name:   name,
			Type:   req.Type,
			Active: req.Active == nil || *req.Active,
		}
		if req.SortOrder != nil {
			created.SortOrder = *req.SortOrder
		}
		return tx.Categories.Insert(ctx, created)
	})
	if err != nil {
		return nil, err
	}

	dto := categoryDTO(created)
	return &dto, nil
}

// Update applies the non-nil fields of the request.
func (s *Categories) Update(ctx context.Context, id string, req UpdateCategoryRequest) (*CategoryDTO, error) {
	if req.SortOrder != nil && *req.SortOrder < 0 {
		return nil, errs.InvalidInput("sortOrder must not be negative")
	}

	var updated domain.Category
	err := s.store.InTx(ctx, func(tx *store.Store) error {
		category, err := getRequiredCategory(ctx, tx, id)
		if err != nil {
			return err
		}

		if req.Name != nil && strings.TrimSpace(*req.Name) != "" {
			candidate := strings.TrimSpace(*req.Name)
			if len(candidate) > maxCategoryNameLength {
				return errs.InvalidInput("name must be at most %d characters", maxCategoryNameLength)
			}
			existing, err := tx.Categories.FindByTypeAndName(ctx, category.Type, candidate)
			if err != nil {
				return err
			}
			if existing != nil && existing.ID != id {
				return errs.InvalidInput("category already exists for type: %s", candidate)
			}
			category.Name = candidate
		}
		if req.SortOrder != nil {
			category.SortOrder = *req.SortOrder
		}
		if req.Active != nil {
			category.Active = *req.Active
		}

		updated = *category
		return tx.Categories.Update(ctx, *category)
	})
	if err != nil {
		return nil, err
	}

	dto := categoryDTO(updated)
	return &dto, nil
}

// Delete removes a category unless plans or transactions reference it.
func (s *Categories) Delete(ctx context.Context, id string) error {
	return s.store.InTx(ctx, func(tx *store.Store) error {
		if _, err := getRequiredCategory(ctx, tx, id); err != nil {
			return err
		}
		referenced, err := tx.Categories.IsReferenced(ctx, id)
		if err != nil {
			return err
		}
		if referenced {
			return errs.InvalidInput("category is referenced by plans or transactions and cannot be deleted")
		}
		return tx.Categories.Delete(ctx, id)
	})
}

func getRequiredCategory(ctx context.Context, tx *store.Store, id string) (*domain.Category, error) {
	category, err := tx.Categories.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if category == nil {
		return nil, errs.NotFound("category %s not found", id)
	}
	return category, nil
}

func validateCategoryType(categoryType domain.CategoryType) error {
	if categoryType != domain.CategoryExpense && categoryType != domain.CategoryIncome {
		return errs.InvalidInput("type must be EXPENSE or INCOME")
	}
	return nil
}

func categoryDTO(c domain.Category) CategoryDTO {
	return CategoryDTO{
		ID:        c.ID,
		Name:      c.Name,
		Type:      c.Type,
		SortOrder: c.SortOrder,
		Active:    c.Active,
	}
}
