package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pharmatrade/pharmatrade/internal/platform/db"
	"github.com/pharmatrade/pharmatrade/internal/shared"
)

const recordColumns = `id, pharmacy_id, medicine_id, quantity, reserved_quantity, min_stock_level, max_stock_level,
	unit_price, currency, batch_number, expiry_date, status, notification_sent, low_stock_notification_sent,
	created_at, updated_at`

// Repository persists inventory records in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional ledger operations used by services.
type TxRepository interface {
	GetForUpdate(ctx context.Context, pharmacyID, medicineID int64) (Record, error)
	Update(ctx context.Context, record Record) error
	Create(ctx context.Context, record Record) (int64, error)
}

type txRepo struct {
	tx pgx.Tx
}

// NewTxRepository wraps an already open transaction with ledger operations,
// for callers whose unit of work spans the ledger and their own tables.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepo{tx: tx}
}

// WithTx executes the callback inside a repeatable-read transaction.
// Serialization failures surface as ErrConcurrencyConflict so callers can
// retry.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
	if db.IsSerializationFailure(err) {
		return fmt.Errorf("inventory: %v: %w", err, shared.ErrConcurrencyConflict)
	}
	return err
}

// Get returns the record for one (pharmacy, medicine) pair.
func (r *Repository) Get(ctx context.Context, pharmacyID, medicineID int64) (Record, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM inventory_records
		WHERE pharmacy_id = $1 AND medicine_id = $2`, pharmacyID, medicineID)
	return scanRecord(row)
}

// GetByID returns a record by primary key.
func (r *Repository) GetByID(ctx context.Context, id int64) (Record, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM inventory_records WHERE id = $1`, id)
	return scanRecord(row)
}

// Filter narrows inventory listings.
type Filter struct {
	PharmacyID int64
	MedicineID int64
	Status     string
}

// List returns a pharmacy's records with optional status filter.
func (r *Repository) List(ctx context.Context, filter Filter, page shared.Pagination) ([]Record, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM inventory_records
		WHERE pharmacy_id = $1
		  AND ($2 = 0 OR medicine_id = $2)
		  AND ($3 = '' OR status = $3)`, filter.PharmacyID, filter.MedicineID, filter.Status).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+recordColumns+` FROM inventory_records
		WHERE pharmacy_id = $1
		  AND ($2 = 0 OR medicine_id = $2)
		  AND ($3 = '' OR status = $3)
		ORDER BY updated_at DESC
		LIMIT $4 OFFSET $5`, filter.PharmacyID, filter.MedicineID, filter.Status, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	records, err := scanRecords(rows)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// SearchAvailable lists other pharmacies' records with available stock for a
// medicine, used when shopping for a trade counterparty.
func (r *Repository) SearchAvailable(ctx context.Context, medicineID, excludePharmacyID int64, page shared.Pagination) ([]Record, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM inventory_records
		WHERE medicine_id = $1 AND pharmacy_id <> $2
		  AND quantity - reserved_quantity > 0 AND status <> 'expired'`, medicineID, excludePharmacyID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+recordColumns+` FROM inventory_records
		WHERE medicine_id = $1 AND pharmacy_id <> $2
		  AND quantity - reserved_quantity > 0 AND status <> 'expired'
		ORDER BY unit_price, updated_at DESC
		LIMIT $3 OFFSET $4`, medicineID, excludePharmacyID, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	records, err := scanRecords(rows)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// Delete removes a record. Records holding reservations cannot be removed.
func (r *Repository) Delete(ctx context.Context, id, pharmacyID int64) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM inventory_records
		WHERE id = $1 AND pharmacy_id = $2 AND reserved_quantity = 0`, id, pharmacyID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepo) GetForUpdate(ctx context.Context, pharmacyID, medicineID int64) (Record, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+recordColumns+` FROM inventory_records
		WHERE pharmacy_id = $1 AND medicine_id = $2 FOR UPDATE`, pharmacyID, medicineID)
	return scanRecord(row)
}

func (r *txRepo) Update(ctx context.Context, record Record) error {
	tag, err := r.tx.Exec(ctx, `
		UPDATE inventory_records
		SET quantity = $2, reserved_quantity = $3, min_stock_level = $4, max_stock_level = $5,
		    unit_price = $6, batch_number = $7, expiry_date = $8, status = $9,
		    notification_sent = $10, low_stock_notification_sent = $11, updated_at = now()
		WHERE id = $1`,
		record.ID, record.Quantity, record.ReservedQuantity, record.MinStockLevel, record.MaxStockLevel,
		record.UnitPrice, record.BatchNumber, record.ExpiryDate, record.Status,
		record.NotificationSent, record.LowStockNotificationSent)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepo) Create(ctx context.Context, record Record) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `
		INSERT INTO inventory_records (pharmacy_id, medicine_id, quantity, reserved_quantity,
			min_stock_level, max_stock_level, unit_price, currency, batch_number, expiry_date, status,
			notification_sent, low_stock_notification_sent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`,
		record.PharmacyID, record.MedicineID, record.Quantity, record.ReservedQuantity,
		record.MinStockLevel, record.MaxStockLevel, record.UnitPrice, record.Currency,
		record.BatchNumber, record.ExpiryDate, record.Status,
		record.NotificationSent, record.LowStockNotificationSent).Scan(&id)
	if err != nil && db.IsUniqueViolation(err) {
		return 0, fmt.Errorf("inventory: record already exists: %w", shared.ErrConcurrencyConflict)
	}
	return id, err
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	var expiry *time.Time
	err := row.Scan(&rec.ID, &rec.PharmacyID, &rec.MedicineID, &rec.Quantity, &rec.ReservedQuantity,
		&rec.MinStockLevel, &rec.MaxStockLevel, &rec.UnitPrice, &rec.Currency, &rec.BatchNumber, &expiry,
		&rec.Status, &rec.NotificationSent, &rec.LowStockNotificationSent, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, shared.ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	if expiry != nil {
		rec.ExpiryDate = *expiry
	}
	return rec, nil
}

func scanRecords(rows pgx.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var rec Record
		var expiry *time.Time
		if err := rows.Scan(&rec.ID, &rec.PharmacyID, &rec.MedicineID, &rec.Quantity, &rec.ReservedQuantity,
			&rec.MinStockLevel, &rec.MaxStockLevel, &rec.UnitPrice, &rec.Currency, &rec.BatchNumber, &expiry,
			&rec.Status, &rec.NotificationSent, &rec.LowStockNotificationSent, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		if expiry != nil {
			rec.ExpiryDate = *expiry
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
