package medicines

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pharmatrade/pharmatrade/internal/shared"
)

const medicineColumns = `id, name, generic_name, manufacturer, barcode, dosage_form, strength, category, prescription_required, description, created_at, updated_at`

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Search lists catalog entries matching the folded query against name,
// generic name and barcode. An empty query lists the catalog.
func (r *Repository) Search(ctx context.Context, query, category string, page shared.Pagination) ([]Medicine, int, error) {
	pattern := "%" + query + "%"
	var total int
	if err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM medicines
		WHERE ($1 = '%%' OR search_name LIKE $1 OR search_generic LIKE $1 OR barcode = $2)
		  AND ($3 = '' OR category = $3)`, pattern, query, category).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+medicineColumns+` FROM medicines
		WHERE ($1 = '%%' OR search_name LIKE $1 OR search_generic LIKE $1 OR barcode = $2)
		  AND ($3 = '' OR category = $3)
		ORDER BY name
		LIMIT $4 OFFSET $5`, pattern, query, category, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := scanMedicines(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// GetByID looks up a medicine by primary key.
func (r *Repository) GetByID(ctx context.Context, id int64) (Medicine, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+medicineColumns+` FROM medicines WHERE id = $1`, id)
	return scanMedicine(row)
}

// GetByBarcode looks up a medicine by its barcode.
func (r *Repository) GetByBarcode(ctx context.Context, barcode string) (Medicine, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+medicineColumns+` FROM medicines WHERE barcode = $1`, barcode)
	return scanMedicine(row)
}

func scanMedicine(row pgx.Row) (Medicine, error) {
	var m Medicine
	err := row.Scan(&m.ID, &m.Name, &m.GenericName, &m.Manufacturer, &m.Barcode, &m.DosageForm,
		&m.Strength, &m.Category, &m.PrescriptionRequired, &m.Description, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Medicine{}, shared.ErrNotFound
	}
	if err != nil {
		return Medicine{}, err
	}
	return m, nil
}

func scanMedicines(rows pgx.Rows) ([]Medicine, error) {
	var items []Medicine
	for rows.Next() {
		var m Medicine
		if err := rows.Scan(&m.ID, &m.Name, &m.GenericName, &m.Manufacturer, &m.Barcode, &m.DosageForm,
			&m.Strength, &m.Category, &m.PrescriptionRequired, &m.Description, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}
