package notification

import (
	"context"
	"fmt"

	"github.com/pharmatrade/pharmatrade/internal/shared"
)

// RepositoryPort defines persistence for notifications.
type RepositoryPort interface {
	Create(ctx context.Context, n Notification) (Notification, error)
	ListByRecipient(ctx context.Context, recipientID int64, onlyUnread bool, page shared.Pagination) ([]Notification, int, error)
	CountUnread(ctx context.Context, recipientID int64) (int, error)
	MarkRead(ctx context.Context, recipientID, id int64) error
	MarkAllRead(ctx context.Context, recipientID int64) error
	Delete(ctx context.Context, recipientID, id int64) error
	DeleteAllByRecipient(ctx context.Context, recipientID int64) error
	DeleteLowStock(ctx context.Context, pharmacyID, medicineID int64) error
}

// Service is the notification dispatcher.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// NotifyInput describes one alert to create.
type NotifyInput struct {
	Title   string
	Message string
	Type    string
	Data    Data
}

func validType(t string) bool {
	switch t {
	case TypeOffer, TypeTransaction, TypePurchase, TypeExpiry, TypeSystem:
		return true
	}
	return false
}

// Notify creates one notification for the recipient. Deduplication is the
// caller's responsibility.
func (s *Service) Notify(ctx context.Context, recipientID int64, in NotifyInput) (Notification, error) {
	if recipientID <= 0 {
		return Notification{}, fmt.Errorf("notification: recipient required: %w", shared.ErrValidation)
	}
	if in.Title == "" || !validType(in.Type) {
		return Notification{}, fmt.Errorf("notification: title and valid type required: %w", shared.ErrValidation)
	}
	return s.repo.Create(ctx, Notification{
		RecipientID: recipientID,
		Title:       in.Title,
		Message:     in.Message,
		Type:        in.Type,
		Data:        in.Data,
	})
}

// RetractLowStock deletes open low stock alerts for a ledger record whose
// condition has resolved. Satisfies the ledger's notifier port.
func (s *Service) RetractLowStock(ctx context.Context, pharmacyID, medicineID int64) error {
	return s.repo.DeleteLowStock(ctx, pharmacyID, medicineID)
}

// List returns the caller's notifications.
func (s *Service) List(ctx context.Context, actor shared.Actor, onlyUnread bool, page shared.Pagination) ([]Notification, int, error) {
	return s.repo.ListByRecipient(ctx, actor.UserID, onlyUnread, page)
}

// CountUnread returns the caller's unread count.
func (s *Service) CountUnread(ctx context.Context, actor shared.Actor) (int, error) {
	return s.repo.CountUnread(ctx, actor.UserID)
}

// MarkRead marks one of the caller's notifications as read.
func (s *Service) MarkRead(ctx context.Context, actor shared.Actor, id int64) error {
	return s.repo.MarkRead(ctx, actor.UserID, id)
}

// MarkAllRead marks all of the caller's notifications as read.
func (s *Service) MarkAllRead(ctx context.Context, actor shared.Actor) error {
	return s.repo.MarkAllRead(ctx, actor.UserID)
}

// Delete removes one of the caller's notifications.
func (s *Service) Delete(ctx context.Context, actor shared.Actor, id int64) error {
	return s.repo.Delete(ctx, actor.UserID, id)
}

// DeleteAll removes every notification of the caller.
func (s *Service) DeleteAll(ctx context.Context, actor shared.Actor) error {
	return s.repo.DeleteAllByRecipient(ctx, actor.UserID)
}
