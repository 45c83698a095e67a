package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Scan results. One ScanRecord is appended per verification attempt;
// records are never updated or deleted.
const (
	ScanSuccess   = "success"
	ScanDuplicate = "duplicate"
	ScanInvalid   = "invalid"
)

type ScanRecord struct {
	bun.BaseModel `bun:"table:scan_records"`

	ID         string    `bun:"id,pk" json:"id"`
	TicketID   string    `bun:"ticket_id" json:"ticket_id"`
	ScannedBy  string    `bun:"scanned_by" json:"scanned_by"`
	Location   string    `bun:"location" json:"location,omitempty"`
	DeviceInfo string    `bun:"device_info" json:"device_info,omitempty"`
	Result     string    `bun:"result" json:"result"`
	ScannedAt  time.Time `bun:"scanned_at" json:"scanned_at"`
}

// VerificationResult is what a scanning device renders after presenting a
// credential. History is attached on duplicates so the operator can see the
// earlier scans.
type VerificationResult struct {
	Valid    bool         `json:"valid"`
	Result   string       `json:"result"`
	Message  string       `json:"message"`
	TicketID string       `json:"ticket_id,omitempty"`
	HolderID string       `json:"holder_id,omitempty"`
	EventID  string       `json:"event_id,omitempty"`
	TierID   string       `json:"tier_id,omitempty"`
	UsedAt   time.Time    `json:"used_at,omitempty"`
	History  []ScanRecord `json:"history,omitempty"`
}
