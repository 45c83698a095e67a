package tickets

import (
	"encoding/csv"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-groupbuy/internal/models"
)

func TestSplitPaymentBelowThreshold(t *testing.T) {
	assert.Nil(t, SplitPayment(5000, 1000))
	assert.Nil(t, SplitPayment(5000, 50))
}

func TestSplitPaymentMinimumShares(t *testing.T) {
	// 1001 tickets needs 2 ceiling shares but the floor is 10.
	shares := SplitPayment(10010.0, 1001)
	require.Len(t, shares, 10)
}

func TestSplitPaymentShareCount(t *testing.T) {
	shares := SplitPayment(200000.0, 15000)
	require.Len(t, shares, 15)

	shares = SplitPayment(200000.0, 15500)
	require.Len(t, shares, 16)
}

func TestSplitPaymentSumsToTotal(t *testing.T) {
	amount := 123456.78
	shares := SplitPayment(amount, 2500)
	require.NotEmpty(t, shares)

	var total float64
	refs := make(map[string]bool)
	for _, s := range shares {
		total += s.Amount
		assert.False(t, refs[s.SettlementRef], "settlement ref repeated")
		refs[s.SettlementRef] = true
	}
	assert.InDelta(t, amount, total, 0.001)

	// Rounding remainder lands on the first share, all others are equal.
	if len(shares) > 2 {
		assert.Equal(t, shares[1].Amount, shares[2].Amount)
		assert.GreaterOrEqual(t, shares[0].Amount, shares[1].Amount)
	}
	assert.False(t, math.Signbit(shares[0].Amount))
}

func TestBuildManifest(t *testing.T) {
	issued := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	ticketList := []models.Ticket{
		{ID: "t1", QRToken: "TKT-QR-1-AAAA", BackupCode: "123456", TierID: "vip", IssuedAt: issued},
		{ID: "t2", QRToken: "TKT-QR-1-BBBB", BackupCode: "654321", TierID: "vip", IssuedAt: issued},
	}

	manifest, err := BuildManifest(ticketList)
	require.NoError(t, err)

	rows, err := csv.NewReader(strings.NewReader(manifest)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"ticket_id", "qr_token", "backup_code", "tier_id", "issued_at"}, rows[0])
	assert.Equal(t, []string{"t1", "TKT-QR-1-AAAA", "123456", "vip", "2026-03-14T10:00:00Z"}, rows[1])
	assert.Equal(t, []string{"t2", "TKT-QR-1-BBBB", "654321", "vip", "2026-03-14T10:00:00Z"}, rows[2])
}
