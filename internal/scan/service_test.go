package scan_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"

	"ms-groupbuy/internal/config"
	"ms-groupbuy/internal/logger"
	"ms-groupbuy/internal/models"
	"ms-groupbuy/internal/scan"
	scandb "ms-groupbuy/internal/scan/db"
)

func setupService(t *testing.T) (*scan.Service, *scandb.DB, *bun.DB) {
	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	for _, model := range []interface{}{(*models.Ticket)(nil), (*models.ScanRecord)(nil)} {
		_, err = bunDB.NewCreateTable().Model(model).Exec(context.Background())
		if err != nil {
			t.Fatalf("Failed to create table for %T: %v", model, err)
		}
	}

	db := &scandb.DB{Bun: bunDB}
	svc := scan.NewService(db, nil, logger.NewLogger("test"), config.TopicConfig{})
	return svc, db, bunDB
}

func seedTicket(t *testing.T, bunDB *bun.DB, qrToken, status string) string {
	ticket := models.Ticket{
		ID:         uuid.New().String(),
		HolderID:   "holder1",
		EventID:    "ev1",
		TierID:     "ga",
		QRToken:    qrToken,
		BackupCode: "123456",
		Status:     status,
		IssuedAt:   time.Now(),
	}
	_, err := bunDB.NewInsert().Model(&ticket).Exec(context.Background())
	require.NoError(t, err)
	return ticket.ID
}

var gateA = scan.ScanContext{ScannedBy: "scanner1", Location: "gate-a", DeviceInfo: "handheld-7"}

func TestVerifyDoesNotConsume(t *testing.T) {
	svc, db, bunDB := setupService(t)
	defer bunDB.Close()

	id := seedTicket(t, bunDB, "TKT-QR-1-AAAA", models.TicketValid)

	// Verify twice; the ticket stays valid both times.
	for i := 0; i < 2; i++ {
		result, err := svc.Verify(context.Background(), "TKT-QR-1-AAAA", "", gateA)
		require.NoError(t, err)
		assert.True(t, result.Valid)
		assert.Equal(t, models.ScanSuccess, result.Result)
		assert.Equal(t, id, result.TicketID)
		assert.Equal(t, "holder1", result.HolderID)
	}

	ticket, err := db.GetTicketByQRToken(context.Background(), "TKT-QR-1-AAAA")
	require.NoError(t, err)
	assert.Equal(t, models.TicketValid, ticket.Status)

	// Every attempt left a record.
	history, err := svc.History(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestVerifyUnknownCredential(t *testing.T) {
	svc, _, bunDB := setupService(t)
	defer bunDB.Close()

	result, err := svc.Verify(context.Background(), "TKT-QR-1-NOPE", "", gateA)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, models.ScanInvalid, result.Result)
	assert.Empty(t, result.TicketID)
}

func TestMarkUsedConsumesOnce(t *testing.T) {
	svc, _, bunDB := setupService(t)
	defer bunDB.Close()

	id := seedTicket(t, bunDB, "TKT-QR-1-AAAA", models.TicketValid)

	result, err := svc.MarkUsed(context.Background(), "TKT-QR-1-AAAA", "", gateA)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, models.ScanSuccess, result.Result)
	assert.False(t, result.UsedAt.IsZero())

	// Second presentation is a duplicate carrying the earlier scans.
	gateB := scan.ScanContext{ScannedBy: "scanner2", Location: "gate-b"}
	result, err = svc.MarkUsed(context.Background(), "TKT-QR-1-AAAA", "", gateB)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, models.ScanDuplicate, result.Result)
	assert.NotEmpty(t, result.History)

	history, err := svc.History(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, history, 2)
	// Newest first.
	assert.Equal(t, models.ScanDuplicate, history[0].Result)
	assert.Equal(t, models.ScanSuccess, history[1].Result)
}

func TestMarkUsedByBackupCode(t *testing.T) {
	svc, _, bunDB := setupService(t)
	defer bunDB.Close()

	id := seedTicket(t, bunDB, "TKT-QR-1-AAAA", models.TicketValid)

	result, err := svc.MarkUsed(context.Background(), "", "123456", gateA)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, id, result.TicketID)
}

func TestMarkUsedRefundedTicketIsInvalid(t *testing.T) {
	svc, _, bunDB := setupService(t)
	defer bunDB.Close()

	seedTicket(t, bunDB, "TKT-QR-1-AAAA", models.TicketRefunded)

	result, err := svc.MarkUsed(context.Background(), "TKT-QR-1-AAAA", "", gateA)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, models.ScanInvalid, result.Result)
}

func TestMarkUsedCancelledTicketCarriesHistory(t *testing.T) {
	svc, db, bunDB := setupService(t)
	defer bunDB.Close()

	id := seedTicket(t, bunDB, "TKT-QR-1-AAAA", models.TicketCancelled)
	prior := models.ScanRecord{
		ID:        uuid.New().String(),
		TicketID:  id,
		ScannedBy: "scanner0",
		Result:    models.ScanInvalid,
		ScannedAt: time.Now().Add(-time.Hour),
	}
	require.NoError(t, db.InsertScanRecord(context.Background(), prior))

	result, err := svc.MarkUsed(context.Background(), "TKT-QR-1-AAAA", "", gateA)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, models.ScanInvalid, result.Result)

	// The refusal carries every scan of this ticket, the prior attempt and
	// this one.
	require.Len(t, result.History, 2)
	assert.Equal(t, "scanner0", result.History[1].ScannedBy)
}
