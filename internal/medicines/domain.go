// Package medicines holds the shared medicine catalog.
package medicines

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Medicine describes a catalog entry shared by all pharmacies.
type Medicine struct {
	ID                   int64     `json:"id"`
	Name                 string    `json:"name"`
	GenericName          string    `json:"genericName"`
	Manufacturer         string    `json:"manufacturer"`
	Barcode              string    `json:"barcode"`
	DosageForm           string    `json:"dosageForm"`
	Strength             string    `json:"strength"`
	Category             string    `json:"category"`
	PrescriptionRequired bool      `json:"prescriptionRequired"`
	Description          string    `json:"description"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

var turkishLower = cases.Lower(language.Turkish)

// NormalizeQuery folds a catalog search term using Turkish casing rules, so
// queries like "İLAÇ" match rows stored as "ilaç".
func NormalizeQuery(q string) string {
	return turkishLower.String(strings.TrimSpace(q))
}
