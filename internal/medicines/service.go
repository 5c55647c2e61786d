package medicines

import (
	"context"

	"github.com/pharmatrade/pharmatrade/internal/shared"
)

// RepositoryPort defines data access methods for the catalog.
type RepositoryPort interface {
	Search(ctx context.Context, query, category string, page shared.Pagination) ([]Medicine, int, error)
	GetByID(ctx context.Context, id int64) (Medicine, error)
	GetByBarcode(ctx context.Context, barcode string) (Medicine, error)
}

// Service handles catalog lookups.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Search folds the query with Turkish casing and lists matching medicines.
func (s *Service) Search(ctx context.Context, query, category string, page shared.Pagination) ([]Medicine, int, error) {
	return s.repo.Search(ctx, NormalizeQuery(query), category, page)
}

// GetByID looks up a catalog entry.
func (s *Service) GetByID(ctx context.Context, id int64) (Medicine, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByBarcode looks up a catalog entry by barcode.
func (s *Service) GetByBarcode(ctx context.Context, barcode string) (Medicine, error) {
	return s.repo.GetByBarcode(ctx, barcode)
}
