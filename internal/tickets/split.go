package tickets

import (
	"math"

	"ms-groupbuy/internal/models"
	"ms-groupbuy/internal/utils"
)

// splitThreshold is the bulk quantity above which the total payment amount
// is partitioned into sub-shares with independent settlement references,
// so cost collection can be spread across many payers after the fact.
const (
	splitThreshold  = 1000
	minShares       = 10
	ticketsPerShare = 1000
)

// SplitPayment partitions amount into shares. Amounts are computed in
// cents; any rounding remainder lands on the first share so the shares
// always sum to the total.
func SplitPayment(amount float64, quantity int) []models.PaymentShare {
	if quantity <= splitThreshold {
		return nil
	}

	count := quantity / ticketsPerShare
	if quantity%ticketsPerShare != 0 {
		count++
	}
	if count < minShares {
		count = minShares
	}

	totalCents := int64(math.Round(amount * 100))
	baseCents := totalCents / int64(count)
	remainder := totalCents - baseCents*int64(count)

	shares := make([]models.PaymentShare, count)
	for i := range shares {
		cents := baseCents
		if i == 0 {
			cents += remainder
		}
		shares[i] = models.PaymentShare{
			SettlementRef: utils.GenerateSettlementRef(),
			Amount:        float64(cents) / 100,
		}
	}
	return shares
}
