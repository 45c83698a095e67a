package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Event is the fixed-capacity inventory item tickets are issued against.
// Capacity is immutable after creation; Committed is the authoritative sold
// count and is only ever mutated through the capacity ledger.
type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID             string    `bun:"id,pk" json:"id"`
	Name           string    `bun:"name" json:"name"`
	Venue          string    `bun:"venue" json:"venue"`
	StartsAt       time.Time `bun:"starts_at" json:"starts_at"`
	Capacity       int       `bun:"capacity" json:"capacity"`
	Committed      int       `bun:"committed" json:"committed"`
	PricePerTicket float64   `bun:"price_per_ticket" json:"price_per_ticket"`
	CreatedAt      time.Time `bun:"created_at" json:"created_at"`
}
