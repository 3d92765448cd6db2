package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is the authoritative catalog record. Pricing always re-reads it
// server-side; client-submitted prices are only ever compared against it.
type Product struct {
	ID        uuid.UUID `json:"id"`
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	Price     float64   `json:"price"`
	Currency  string    `json:"currency"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
