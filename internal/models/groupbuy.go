package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Group buy lifecycle states. Completed and expired are terminal.
const (
	GroupBuyActive    = "active"
	GroupBuyCompleted = "completed"
	GroupBuyExpired   = "expired"
)

// Slot payment states.
const (
	PaymentPending = "pending"
	PaymentPaid    = "paid"
)

type GroupBuy struct {
	bun.BaseModel `bun:"table:group_buys,alias:gb"`

	ID           string    `bun:"id,pk" json:"id"`
	EventID      string    `bun:"event_id" json:"event_id"`
	TierID       string    `bun:"tier_id" json:"tier_id"`
	InitiatorID  string    `bun:"initiator_id" json:"initiator_id"`
	TotalSlots   int       `bun:"total_slots" json:"total_slots"`
	PricePerSlot float64   `bun:"price_per_slot" json:"price_per_slot"`
	Status       string    `bun:"status" json:"status"`
	ExpiresAt    time.Time `bun:"expires_at" json:"expires_at"`
	CreatedAt    time.Time `bun:"created_at" json:"created_at"`
	CompletedAt  time.Time `bun:"completed_at,nullzero" json:"completed_at,omitempty"`

	Slots []Slot `bun:"rel:has-many,join:id=group_buy_id" json:"slots,omitempty"`
}

// Slot is one claimable seat in a group buy, bound to at most one
// participant. ClaimLink is unique across all slots ever created.
type Slot struct {
	bun.BaseModel `bun:"table:group_buy_slots"`

	ID            string    `bun:"id,pk" json:"id"`
	GroupBuyID    string    `bun:"group_buy_id" json:"group_buy_id"`
	ClaimLink     string    `bun:"claim_link" json:"claim_link"`
	ClaimantID    string    `bun:"claimant_id" json:"claimant_id"`
	PaymentStatus string    `bun:"payment_status" json:"payment_status"`
	PaymentRef    string    `bun:"payment_ref" json:"payment_ref"`
	SettlementRef string    `bun:"settlement_ref" json:"settlement_ref"`
	TicketID      string    `bun:"ticket_id" json:"ticket_id,omitempty"`
	RefundStatus  string    `bun:"refund_status" json:"refund_status,omitempty"`
	RefundError   string    `bun:"refund_error" json:"refund_error,omitempty"`
	ClaimedAt     time.Time `bun:"claimed_at,nullzero" json:"claimed_at,omitempty"`
	PaidAt        time.Time `bun:"paid_at,nullzero" json:"paid_at,omitempty"`
}

// GroupBuyProgress summarises claim/payment progress for display on the
// claim-link landing page.
type GroupBuyProgress struct {
	GroupBuyID string    `json:"group_buy_id"`
	Status     string    `json:"status"`
	TotalSlots int       `json:"total_slots"`
	Claimed    int       `json:"claimed"`
	Paid       int       `json:"paid"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// RefundOutcome records the result of one participant's refund during
// expiration. Failures are recorded, never fatal to the batch.
type RefundOutcome struct {
	SlotID     string `json:"slot_id"`
	ClaimantID string `json:"claimant_id"`
	PaymentRef string `json:"payment_ref"`
	Refunded   bool   `json:"refunded"`
	Error      string `json:"error,omitempty"`
}

// IssueOutcome records the result of one participant's ticket issuance
// during completion fan-out.
type IssueOutcome struct {
	SlotID     string `json:"slot_id"`
	ClaimantID string `json:"claimant_id"`
	TicketID   string `json:"ticket_id,omitempty"`
	Issued     bool   `json:"issued"`
	Error      string `json:"error,omitempty"`
}
