package notification

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pharmatrade/pharmatrade/internal/shared"
)

// Repository persists notifications in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a notification.
func (r *Repository) Create(ctx context.Context, n Notification) (Notification, error) {
	payload, err := json.Marshal(n.Data)
	if err != nil {
		return Notification{}, err
	}
	err = r.pool.QueryRow(ctx, `
		INSERT INTO notifications (recipient_id, title, message, type, is_read, data)
		VALUES ($1, $2, $3, $4, false, $5)
		RETURNING id, created_at`,
		n.RecipientID, n.Title, n.Message, n.Type, payload).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return Notification{}, err
	}
	return n, nil
}

// ListByRecipient returns a recipient's notifications, newest first.
func (r *Repository) ListByRecipient(ctx context.Context, recipientID int64, onlyUnread bool, page shared.Pagination) ([]Notification, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM notifications
		WHERE recipient_id = $1 AND (NOT $2 OR NOT is_read)`, recipientID, onlyUnread).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, recipient_id, title, message, type, is_read, data, created_at
		FROM notifications
		WHERE recipient_id = $1 AND (NOT $2 OR NOT is_read)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`, recipientID, onlyUnread, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []Notification
	for rows.Next() {
		var n Notification
		var payload []byte
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.Title, &n.Message, &n.Type, &n.IsRead, &payload, &n.CreatedAt); err != nil {
			return nil, 0, err
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &n.Data); err != nil {
				return nil, 0, err
			}
		}
		items = append(items, n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// CountUnread returns the recipient's unread count.
func (r *Repository) CountUnread(ctx context.Context, recipientID int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND NOT is_read`, recipientID).Scan(&count)
	return count, err
}

// MarkRead flags one notification as read.
func (r *Repository) MarkRead(ctx context.Context, recipientID, id int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications SET is_read = true WHERE id = $1 AND recipient_id = $2`, id, recipientID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// MarkAllRead flags every notification of the recipient as read.
func (r *Repository) MarkAllRead(ctx context.Context, recipientID int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE notifications SET is_read = true WHERE recipient_id = $1 AND NOT is_read`, recipientID)
	return err
}

// Delete removes one notification owned by the recipient.
func (r *Repository) Delete(ctx context.Context, recipientID, id int64) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM notifications WHERE id = $1 AND recipient_id = $2`, id, recipientID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// DeleteAllByRecipient removes every notification of the recipient.
func (r *Repository) DeleteAllByRecipient(ctx context.Context, recipientID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM notifications WHERE recipient_id = $1`, recipientID)
	return err
}

// DeleteLowStock removes open low stock alerts referencing the given
// (pharmacy, medicine) record.
func (r *Repository) DeleteLowStock(ctx context.Context, pharmacyID, medicineID int64) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM notifications
		WHERE data->>'alert' = $1
		  AND (data->>'pharmacyId')::bigint = $2
		  AND (data->>'medicineId')::bigint = $3`, AlertLowStock, pharmacyID, medicineID)
	return err
}
