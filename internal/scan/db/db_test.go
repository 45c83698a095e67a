package db_test

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

	"ms-groupbuy/internal/models"
	"ms-groupbuy/internal/scan/db"
)

func setupTestDB(t *testing.T) (*db.DB, *bun.DB) {
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
	return &db.DB{Bun: bunDB}, bunDB
}

func seedTicket(t *testing.T, bunDB *bun.DB, qrToken, backupCode, status string, issuedAt time.Time) string {
	ticket := models.Ticket{
		ID:         uuid.New().String(),
		HolderID:   "holder1",
		EventID:    "ev1",
		TierID:     "ga",
		QRToken:    qrToken,
		BackupCode: backupCode,
		Status:     status,
		IssuedAt:   issuedAt,
	}
	_, err := bunDB.NewInsert().Model(&ticket).Exec(context.Background())
	require.NoError(t, err)
	return ticket.ID
}

func TestGetTicketByQRToken(t *testing.T) {
	scanDB, bunDB := setupTestDB(t)
	defer bunDB.Close()

	id := seedTicket(t, bunDB, "TKT-QR-1-AAAA", "123456", models.TicketValid, time.Now())

	ticket, err := scanDB.GetTicketByQRToken(context.Background(), "TKT-QR-1-AAAA")
	require.NoError(t, err)
	assert.Equal(t, id, ticket.ID)

	_, err = scanDB.GetTicketByQRToken(context.Background(), "TKT-QR-1-ZZZZ")
	assert.True(t, db.IsNotFound(err))
}

func TestGetTicketByBackupCodePrefersValid(t *testing.T) {
	scanDB, bunDB := setupTestDB(t)
	defer bunDB.Close()

	// Backup codes are not unique. An older used ticket shares the code
	// with a newer valid one; the valid one wins.
	seedTicket(t, bunDB, "TKT-QR-1-AAAA", "123456", models.TicketUsed, time.Now().Add(-time.Hour))
	validID := seedTicket(t, bunDB, "TKT-QR-2-BBBB", "123456", models.TicketValid, time.Now())

	ticket, err := scanDB.GetTicketByBackupCode(context.Background(), "123456")
	require.NoError(t, err)
	assert.Equal(t, validID, ticket.ID)
}

func TestGetTicketByBackupCodeFallsBackToUsed(t *testing.T) {
	scanDB, bunDB := setupTestDB(t)
	defer bunDB.Close()

	usedID := seedTicket(t, bunDB, "TKT-QR-1-AAAA", "123456", models.TicketUsed, time.Now())

	ticket, err := scanDB.GetTicketByBackupCode(context.Background(), "123456")
	require.NoError(t, err)
	assert.Equal(t, usedID, ticket.ID)
}

func TestMarkUsedHasOneWinner(t *testing.T) {
	scanDB, bunDB := setupTestDB(t)
	defer bunDB.Close()

	id := seedTicket(t, bunDB, "TKT-QR-1-AAAA", "123456", models.TicketValid, time.Now())
	usedAt := time.Now()

	won, err := scanDB.MarkUsed(context.Background(), id, "scanner1", "gate-a", usedAt)
	require.NoError(t, err)
	assert.True(t, won)

	// Replay loses.
	won, err = scanDB.MarkUsed(context.Background(), id, "scanner2", "gate-b", time.Now())
	require.NoError(t, err)
	assert.False(t, won)

	ticket, err := scanDB.GetTicketByQRToken(context.Background(), "TKT-QR-1-AAAA")
	require.NoError(t, err)
	assert.Equal(t, models.TicketUsed, ticket.Status)
	assert.Equal(t, "scanner1", ticket.ScannedBy)
	assert.Equal(t, "gate-a", ticket.ScanLocation)
}

func TestMarkUsedRejectsCancelled(t *testing.T) {
	scanDB, bunDB := setupTestDB(t)
	defer bunDB.Close()

	id := seedTicket(t, bunDB, "TKT-QR-1-AAAA", "123456", models.TicketCancelled, time.Now())

	won, err := scanDB.MarkUsed(context.Background(), id, "scanner1", "gate-a", time.Now())
	require.NoError(t, err)
	assert.False(t, won)
}

func TestScanHistoryNewestFirst(t *testing.T) {
	scanDB, bunDB := setupTestDB(t)
	defer bunDB.Close()

	id := seedTicket(t, bunDB, "TKT-QR-1-AAAA", "123456", models.TicketValid, time.Now())

	base := time.Now().Add(-time.Hour)
	results := []string{models.ScanSuccess, models.ScanDuplicate, models.ScanDuplicate}
	for i, result := range results {
		record := models.ScanRecord{
			ID:        uuid.New().String(),
			TicketID:  id,
			ScannedBy: "scanner1",
			Result:    result,
			ScannedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, scanDB.InsertScanRecord(context.Background(), record))
	}

	history, err := scanDB.GetScanHistory(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, history, 3)

	assert.Equal(t, models.ScanDuplicate, history[0].Result)
	assert.Equal(t, models.ScanSuccess, history[2].Result)
	assert.True(t, history[0].ScannedAt.After(history[1].ScannedAt))
	assert.True(t, history[1].ScannedAt.After(history[2].ScannedAt))
}
