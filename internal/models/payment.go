package models

// Payment statuses as reported by the payment collaborator.
const (
	PaymentStatusSuccessful = "successful"
	PaymentStatusPending    = "pending"
	PaymentStatusFailed     = "failed"
	PaymentStatusRefunded   = "refunded"
)

// PaymentInfo is the resolved view of a payment reference.
type PaymentInfo struct {
	Ref     string  `json:"ref"`
	OwnerID string  `json:"owner_id"`
	Amount  float64 `json:"amount"`
	Status  string  `json:"status"`
}

// RefundResult is the outcome of a refund request against the gateway.
type RefundResult struct {
	Ref    string `json:"ref"`
	Status string `json:"status"`
}
