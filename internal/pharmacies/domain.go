// Package pharmacies keeps the registry of trading pharmacies.
package pharmacies

import "time"

// Pharmacy represents a registered pharmacy able to trade stock.
type Pharmacy struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	City      string    `json:"city"`
	District  string    `json:"district"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
