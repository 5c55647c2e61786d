package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pharmatrade/pharmatrade/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListUsers returns all users of a pharmacy.
func (r *Repository) ListUsers(ctx context.Context, pharmacyID int64) ([]User, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, pharmacist_id, email, name, pharmacy_id, is_active, created_at, updated_at
		FROM users
		WHERE pharmacy_id = $1
		ORDER BY id`, pharmacyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.ID, &user.PharmacistID, &user.Email, &user.Name, &user.PharmacyID, &user.IsActive, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// GetByID looks up a user by primary key.
func (r *Repository) GetByID(ctx context.Context, id int64) (User, error) {
	var user User
	err := r.pool.QueryRow(ctx, `
		SELECT id, pharmacist_id, email, name, pharmacy_id, is_active, created_at, updated_at
		FROM users
		WHERE id = $1`, id).
		Scan(&user.ID, &user.PharmacistID, &user.Email, &user.Name, &user.PharmacyID, &user.IsActive, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, shared.ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// GetOwnerByPharmacy returns the user notified on a pharmacy's behalf, the
// oldest active account.
func (r *Repository) GetOwnerByPharmacy(ctx context.Context, pharmacyID int64) (User, error) {
	var user User
	err := r.pool.QueryRow(ctx, `
		SELECT id, pharmacist_id, email, name, pharmacy_id, is_active, created_at, updated_at
		FROM users
		WHERE pharmacy_id = $1 AND is_active
		ORDER BY id
		LIMIT 1`, pharmacyID).
		Scan(&user.ID, &user.PharmacistID, &user.Email, &user.Name, &user.PharmacyID, &user.IsActive, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, shared.ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// GetByPharmacistID looks up a user by the external pharmacist identifier.
func (r *Repository) GetByPharmacistID(ctx context.Context, pharmacistID string) (User, error) {
	var user User
	err := r.pool.QueryRow(ctx, `
		SELECT id, pharmacist_id, email, name, pharmacy_id, is_active, created_at, updated_at
		FROM users
		WHERE pharmacist_id = $1`, pharmacistID).
		Scan(&user.ID, &user.PharmacistID, &user.Email, &user.Name, &user.PharmacyID, &user.IsActive, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, shared.ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	return user, nil
}
