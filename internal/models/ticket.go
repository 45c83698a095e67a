package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Ticket statuses. Used is set only by the scan verifier; cancelled and
// refunded are imposed by external billing events.
const (
	TicketValid     = "valid"
	TicketUsed      = "used"
	TicketCancelled = "cancelled"
	TicketRefunded  = "refunded"
)

type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	ID           string    `bun:"id,pk" json:"id"`
	HolderID     string    `bun:"holder_id" json:"holder_id"`
	EventID      string    `bun:"event_id" json:"event_id"`
	TierID       string    `bun:"tier_id" json:"tier_id"`
	PaymentRef   string    `bun:"payment_ref" json:"payment_ref"`
	QRToken      string    `bun:"qr_token" json:"qr_token"`
	BackupCode   string    `bun:"backup_code" json:"backup_code"`
	Status       string    `bun:"status" json:"status"`
	IssuedAt     time.Time `bun:"issued_at" json:"issued_at"`
	UsedAt       time.Time `bun:"used_at,nullzero" json:"used_at,omitempty"`
	ScannedBy    string    `bun:"scanned_by" json:"scanned_by,omitempty"`
	ScanLocation string    `bun:"scan_location" json:"scan_location,omitempty"`
}

// PaymentShare is one sub-share of a bulk purchase's total amount, carrying
// its own settlement reference so cost collection can be spread across many
// payers after the fact.
type PaymentShare struct {
	SettlementRef string  `json:"settlement_ref"`
	Amount        float64 `json:"amount"`
}

// BulkIssue is the result of a bulk issuance: the tickets, a CSV manifest
// (one row per ticket) and, for large batches, the payment split.
type BulkIssue struct {
	Tickets  []Ticket       `json:"tickets"`
	Manifest string         `json:"manifest"`
	Shares   []PaymentShare `json:"shares,omitempty"`
}

// HolderTickets is the per-holder listing with counts, mirroring what the
// "my tickets" page renders.
type HolderTickets struct {
	Tickets []Ticket `json:"tickets"`
	Total   int      `json:"total"`
	Valid   int      `json:"valid"`
	Used    int      `json:"used"`
}
