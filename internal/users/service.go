package users

import (
	"context"
	"fmt"

	"github.com/pharmatrade/pharmatrade/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context, pharmacyID int64) ([]User, error)
	GetByID(ctx context.Context, id int64) (User, error)
	GetByPharmacistID(ctx context.Context, pharmacistID string) (User, error)
	GetOwnerByPharmacy(ctx context.Context, pharmacyID int64) (User, error)
}

// Service handles user business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ListUsers returns all users of the given pharmacy.
func (s *Service) ListUsers(ctx context.Context, pharmacyID int64) ([]User, error) {
	return s.repo.ListUsers(ctx, pharmacyID)
}

// GetByID looks up a user by primary key.
func (s *Service) GetByID(ctx context.Context, id int64) (User, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByPharmacistID looks up a user by external identifier.
func (s *Service) GetByPharmacistID(ctx context.Context, pharmacistID string) (User, error) {
	return s.repo.GetByPharmacistID(ctx, pharmacistID)
}

// ResolveOwner maps a pharmacy to the user who receives its notifications.
func (s *Service) ResolveOwner(ctx context.Context, pharmacyID int64) (int64, error) {
	user, err := s.repo.GetOwnerByPharmacy(ctx, pharmacyID)
	if err != nil {
		return 0, err
	}
	return user.ID, nil
}

// Resolve maps a pharmacist identifier to the acting user and pharmacy.
// Inactive accounts are rejected.
func (s *Service) Resolve(ctx context.Context, pharmacistID string) (shared.Actor, error) {
	user, err := s.repo.GetByPharmacistID(ctx, pharmacistID)
	if err != nil {
		return shared.Actor{}, err
	}
	if !user.IsActive {
		return shared.Actor{}, fmt.Errorf("users: account %s disabled: %w", pharmacistID, shared.ErrForbidden)
	}
	return shared.Actor{UserID: user.ID, PharmacyID: user.PharmacyID}, nil
}
