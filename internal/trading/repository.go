package trading

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pharmatrade/pharmatrade/internal/inventory"
	"github.com/pharmatrade/pharmatrade/internal/platform/db"
	"github.com/pharmatrade/pharmatrade/internal/shared"
)

const transactionColumns = `id, code, seller_pharmacy_id, buyer_pharmacy_id, seller_user_id, buyer_user_id,
	items, total_amount, currency, payment_method, notes, status, timeline, seller_rating, buyer_rating,
	completed_at, created_at, updated_at`

// Repository persists transactions in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository bundles transaction writes with ledger operations so a status
// transition and its stock effect commit or roll back together.
type TxRepository interface {
	inventory.TxRepository
	GetTransactionForUpdate(ctx context.Context, id int64) (Transaction, error)
	InsertTransaction(ctx context.Context, t Transaction) (int64, error)
	UpdateTransactionStatus(ctx context.Context, t Transaction, fromStatus string) error
	UpdateRatings(ctx context.Context, t Transaction) error
}

type txRepo struct {
	tx pgx.Tx
	inventory.TxRepository
}

// WithTx runs fn inside one repeatable-read transaction spanning both the
// transactions table and the inventory ledger.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx, TxRepository: inventory.NewTxRepository(tx)})
	})
	if db.IsSerializationFailure(err) {
		return fmt.Errorf("trading: %v: %w", err, shared.ErrConcurrencyConflict)
	}
	return err
}

// GetByID returns one transaction.
func (r *Repository) GetByID(ctx context.Context, id int64) (Transaction, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
	return scanTransaction(row)
}

// Filter narrows transaction listings for one pharmacy.
type Filter struct {
	PharmacyID int64
	Role       string // seller, buyer or empty for both
	Status     string
}

// List returns transactions where the pharmacy is a party, newest first.
func (r *Repository) List(ctx context.Context, filter Filter, page shared.Pagination) ([]Transaction, int, error) {
	where := `WHERE ($1 = '' OR status = $1)
		AND CASE $2
			WHEN 'seller' THEN seller_pharmacy_id = $3
			WHEN 'buyer' THEN buyer_pharmacy_id = $3
			ELSE seller_pharmacy_id = $3 OR buyer_pharmacy_id = $3
		END`
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM transactions `+where,
		filter.Status, filter.Role, filter.PharmacyID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+transactionColumns+` FROM transactions `+where+`
		ORDER BY created_at DESC LIMIT $4 OFFSET $5`,
		filter.Status, filter.Role, filter.PharmacyID, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Stats summarizes completed trade volume for one pharmacy.
type Stats struct {
	TotalSales     float64        `json:"totalSales"`
	TotalPurchases float64        `json:"totalPurchases"`
	SalesCount     int            `json:"salesCount"`
	PurchasesCount int            `json:"purchasesCount"`
	ByStatus       map[string]int `json:"byStatus"`
}

// GetStats aggregates trade figures for the pharmacy.
func (r *Repository) GetStats(ctx context.Context, pharmacyID int64) (Stats, error) {
	stats := Stats{ByStatus: make(map[string]int)}
	err := r.pool.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(total_amount) FILTER (WHERE seller_pharmacy_id = $1 AND status = 'completed'), 0),
			COALESCE(SUM(total_amount) FILTER (WHERE buyer_pharmacy_id = $1 AND status = 'completed'), 0),
			COUNT(*) FILTER (WHERE seller_pharmacy_id = $1 AND status = 'completed'),
			COUNT(*) FILTER (WHERE buyer_pharmacy_id = $1 AND status = 'completed')
		FROM transactions
		WHERE seller_pharmacy_id = $1 OR buyer_pharmacy_id = $1`, pharmacyID).
		Scan(&stats.TotalSales, &stats.TotalPurchases, &stats.SalesCount, &stats.PurchasesCount)
	if err != nil {
		return Stats{}, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT status, COUNT(*) FROM transactions
		WHERE seller_pharmacy_id = $1 OR buyer_pharmacy_id = $1
		GROUP BY status`, pharmacyID)
	if err != nil {
		return Stats{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return Stats{}, err
		}
		stats.ByStatus[status] = count
	}
	return stats, rows.Err()
}

func (r *txRepo) GetTransactionForUpdate(ctx context.Context, id int64) (Transaction, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id)
	return scanTransaction(row)
}

func (r *txRepo) InsertTransaction(ctx context.Context, t Transaction) (int64, error) {
	items, timeline, sellerRating, buyerRating, err := marshalParts(t)
	if err != nil {
		return 0, err
	}
	var id int64
	err = r.tx.QueryRow(ctx, `
		INSERT INTO transactions (code, seller_pharmacy_id, buyer_pharmacy_id, seller_user_id, buyer_user_id,
			items, total_amount, currency, payment_method, notes, status, timeline, seller_rating, buyer_rating)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id`,
		t.Code, t.SellerPharmacyID, t.BuyerPharmacyID, t.SellerUserID, t.BuyerUserID,
		items, t.TotalAmount, t.Currency, t.PaymentMethod, t.Notes, t.Status, timeline, sellerRating, buyerRating).
		Scan(&id)
	return id, err
}

// UpdateTransactionStatus applies a transition conditioned on the stored
// status. A zero row count means another caller advanced it first.
func (r *txRepo) UpdateTransactionStatus(ctx context.Context, t Transaction, fromStatus string) error {
	_, timeline, _, _, err := marshalParts(t)
	if err != nil {
		return err
	}
	tag, err := r.tx.Exec(ctx, `
		UPDATE transactions
		SET status = $2, timeline = $3, completed_at = $4, updated_at = now()
		WHERE id = $1 AND status = $5`,
		t.ID, t.Status, timeline, t.CompletedAt, fromStatus)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("trading: transaction %d no longer %s: %w", t.ID, fromStatus, shared.ErrInvalidTransition)
	}
	return nil
}

func (r *txRepo) UpdateRatings(ctx context.Context, t Transaction) error {
	_, _, sellerRating, buyerRating, err := marshalParts(t)
	if err != nil {
		return err
	}
	tag, err := r.tx.Exec(ctx, `
		UPDATE transactions SET seller_rating = $2, buyer_rating = $3, updated_at = now()
		WHERE id = $1`, t.ID, sellerRating, buyerRating)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func marshalParts(t Transaction) (items, timeline, sellerRating, buyerRating []byte, err error) {
	if items, err = json.Marshal(t.Items); err != nil {
		return
	}
	if timeline, err = json.Marshal(t.Timeline); err != nil {
		return
	}
	if t.SellerRating != nil {
		if sellerRating, err = json.Marshal(t.SellerRating); err != nil {
			return
		}
	}
	if t.BuyerRating != nil {
		if buyerRating, err = json.Marshal(t.BuyerRating); err != nil {
			return
		}
	}
	return
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var t Transaction
	var items, timeline, sellerRating, buyerRating []byte
	var completedAt *time.Time
	err := row.Scan(&t.ID, &t.Code, &t.SellerPharmacyID, &t.BuyerPharmacyID, &t.SellerUserID, &t.BuyerUserID,
		&items, &t.TotalAmount, &t.Currency, &t.PaymentMethod, &t.Notes, &t.Status, &timeline,
		&sellerRating, &buyerRating, &completedAt, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, shared.ErrNotFound
	}
	if err != nil {
		return Transaction{}, err
	}
	if err := json.Unmarshal(items, &t.Items); err != nil {
		return Transaction{}, err
	}
	if err := json.Unmarshal(timeline, &t.Timeline); err != nil {
		return Transaction{}, err
	}
	if len(sellerRating) > 0 {
		t.SellerRating = &Rating{}
		if err := json.Unmarshal(sellerRating, t.SellerRating); err != nil {
			return Transaction{}, err
		}
	}
	if len(buyerRating) > 0 {
		t.BuyerRating = &Rating{}
		if err := json.Unmarshal(buyerRating, t.BuyerRating); err != nil {
			return Transaction{}, err
		}
	}
	t.CompletedAt = completedAt
	return t, nil
}
