package tickets

import (
	"bytes"
	"encoding/csv"
	"time"

	"ms-groupbuy/internal/models"
)

// BuildManifest renders one CSV row per ticket for export alongside a bulk
// issuance.
func BuildManifest(ticketList []models.Ticket) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"ticket_id", "qr_token", "backup_code", "tier_id", "issued_at"}); err != nil {
		return "", err
	}
	for _, t := range ticketList {
		row := []string{t.ID, t.QRToken, t.BackupCode, t.TierID, t.IssuedAt.UTC().Format(time.RFC3339)}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
