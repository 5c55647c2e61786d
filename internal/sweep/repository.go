package sweep

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository runs the scan queries against PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const candidateColumns = `r.id, r.pharmacy_id, r.medicine_id, r.quantity, r.reserved_quantity,
	r.min_stock_level, r.batch_number, r.expiry_date,
	COALESCE(u.id, 0), COALESCE(m.name, '')`

const candidateJoins = `
	LEFT JOIN LATERAL (
		SELECT id FROM users
		WHERE pharmacy_id = r.pharmacy_id AND is_active
		ORDER BY id LIMIT 1
	) u ON true
	LEFT JOIN medicines m ON m.id = r.medicine_id`

// ListExpiring returns unnotified records expiring within the window.
func (r *Repository) ListExpiring(ctx context.Context, within time.Duration, limit int) ([]Candidate, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+candidateColumns+`
		FROM inventory_records r`+candidateJoins+`
		WHERE NOT r.notification_sent
		  AND r.expiry_date IS NOT NULL
		  AND r.expiry_date >= now()
		  AND r.expiry_date <= now() + $1
		ORDER BY r.expiry_date
		LIMIT $2`, within, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCandidates(rows)
}

// ListUnderStock returns unnotified records below their minimum level.
func (r *Repository) ListUnderStock(ctx context.Context, limit int) ([]Candidate, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+candidateColumns+`
		FROM inventory_records r`+candidateJoins+`
		WHERE NOT r.low_stock_notification_sent
		  AND r.quantity < r.min_stock_level
		ORDER BY r.quantity
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCandidates(rows)
}

// MarkExpiryNotified sets the expiry debounce flag.
func (r *Repository) MarkExpiryNotified(ctx context.Context, recordID int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE inventory_records SET notification_sent = true, updated_at = now()
		WHERE id = $1`, recordID)
	return err
}

// MarkLowStockNotified sets the low stock debounce flag.
func (r *Repository) MarkLowStockNotified(ctx context.Context, recordID int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE inventory_records SET low_stock_notification_sent = true, updated_at = now()
		WHERE id = $1`, recordID)
	return err
}

func scanCandidates(rows pgx.Rows) ([]Candidate, error) {
	var out []Candidate
	for rows.Next() {
		var c Candidate
		var expiry *time.Time
		if err := rows.Scan(&c.Record.ID, &c.Record.PharmacyID, &c.Record.MedicineID, &c.Record.Quantity,
			&c.Record.ReservedQuantity, &c.Record.MinStockLevel, &c.Record.BatchNumber, &expiry,
			&c.OwnerUserID, &c.MedicineName); err != nil {
			return nil, err
		}
		if expiry != nil {
			c.Record.ExpiryDate = *expiry
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
