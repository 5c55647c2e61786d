// Package users manages pharmacist accounts and resolves caller identity.
package users

import "time"

// User represents a pharmacist account tied to a pharmacy.
type User struct {
	ID           int64     `json:"id"`
	PharmacistID string    `json:"pharmacistId"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PharmacyID   int64     `json:"pharmacyId"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
