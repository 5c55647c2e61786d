// Package notification creates and manages recipient-facing alerts. The
// dispatcher performs no deduplication itself; callers gate on debounce flags
// or the one-transition-one-notification rule.
package notification

import "time"

// Notification types.
const (
	TypeOffer       = "offer"
	TypeTransaction = "transaction"
	TypePurchase    = "purchase"
	TypeExpiry      = "expiry"
	TypeSystem      = "system"
)

// Alert kinds carried in Data for sweep-generated notifications.
const (
	AlertLowStock = "low_stock"
	AlertExpiry   = "expiry"
)

// Data holds structured back-references to the triggering records.
type Data struct {
	TransactionID *int64 `json:"transactionId,omitempty"`
	InventoryID   *int64 `json:"inventoryId,omitempty"`
	MedicineID    *int64 `json:"medicineId,omitempty"`
	PharmacyID    *int64 `json:"pharmacyId,omitempty"`
	Alert         string `json:"alert,omitempty"`
}

// Notification is one alert owned by a recipient user.
type Notification struct {
	ID          int64     `json:"id"`
	RecipientID int64     `json:"recipientId"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	Type        string    `json:"type"`
	IsRead      bool      `json:"isRead"`
	Data        Data      `json:"data"`
	CreatedAt   time.Time `json:"createdAt"`
}
