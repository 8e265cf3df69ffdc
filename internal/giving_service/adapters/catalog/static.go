// Package catalog provides an in-memory CategoryRepository. Durable catalog
// storage is owned by another system; this adapter holds the fixed set of
// category codes the service is configured with.
package catalog

import (
	"context"
	"fmt"

	"github.com/givebridge/giving_services/internal/giving_service/domain"
	"github.com/givebridge/giving_services/internal/giving_service/repository"
)

type staticCatalog struct {
	byCode map[string]domain.Category
	order  []domain.Category
}

// NewStaticCatalog builds a read-only catalog from the given categories.
func NewStaticCatalog(categories []domain.Category) repository.CategoryRepository {
	byCode := make(map[string]domain.Category, len(categories))
	for _, c := range categories {
		byCode[c.Code] = c
	}
	return &staticCatalog{byCode: byCode, order: categories}
}

// DefaultCategories is the catalog used when none is configured.
func DefaultCategories() []domain.Category {
	return []domain.Category{
		{Code: "TITHE", Name: "Tithe"},
		{Code: "OFFERING", Name: "Offering"},
		{Code: "BUILDING", Name: "Building Fund"},
		{Code: "MISSIONS", Name: "Missions"},
	}
}

func (s *staticCatalog) GetByCode(ctx context.Context, code string) (*domain.Category, error) {
	c, ok := s.byCode[code]
	if !ok {
		return nil, fmt.Errorf("%w: unknown category %q", domain.ErrValidation, code)
	}
	return &c, nil
}

func (s *staticCatalog) List(ctx context.Context) ([]domain.Category, error) {
	out := make([]domain.Category, len(s.order))
	copy(out, s.order)
	return out, nil
}
