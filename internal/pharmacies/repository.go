package pharmacies

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

// List returns active pharmacies, optionally filtered by city.
func (r *Repository) List(ctx context.Context, city string, page shared.Pagination) ([]Pharmacy, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM pharmacies
		WHERE is_active AND ($1 = '' OR city = $1)`, city).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, address, city, district, phone, email, is_active, created_at, updated_at
		FROM pharmacies
		WHERE is_active AND ($1 = '' OR city = $1)
		ORDER BY name
		LIMIT $2 OFFSET $3`, city, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []Pharmacy
	for rows.Next() {
		var p Pharmacy
		if err := rows.Scan(&p.ID, &p.Name, &p.Address, &p.City, &p.District, &p.Phone, &p.Email, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// GetByID looks up a pharmacy by primary key.
func (r *Repository) GetByID(ctx context.Context, id int64) (Pharmacy, error) {
	var p Pharmacy
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, address, city, district, phone, email, is_active, created_at, updated_at
		FROM pharmacies
		WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Address, &p.City, &p.District, &p.Phone, &p.Email, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Pharmacy{}, shared.ErrNotFound
	}
	if err != nil {
		return Pharmacy{}, err
	}
	return p, nil
}
