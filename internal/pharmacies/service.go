package pharmacies

import (
	"context"

	"github.com/pharmatrade/pharmatrade/internal/shared"
)

// RepositoryPort defines data access methods for pharmacies.
type RepositoryPort interface {
	List(ctx context.Context, city string, page shared.Pagination) ([]Pharmacy, int, error)
	GetByID(ctx context.Context, id int64) (Pharmacy, error)
}

// Service handles pharmacy registry logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// List returns active pharmacies.
func (s *Service) List(ctx context.Context, city string, page shared.Pagination) ([]Pharmacy, int, error) {
	return s.repo.List(ctx, city, page)
}

// GetByID looks up a pharmacy.
func (s *Service) GetByID(ctx context.Context, id int64) (Pharmacy, error) {
	return s.repo.GetByID(ctx, id)
}
