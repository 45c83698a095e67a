package db_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"

	"ms-groupbuy/internal/models"
	"ms-groupbuy/internal/tickets/db"
)

func setupTestDB(t *testing.T) (*db.DB, *bun.DB) {
	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	for _, model := range []interface{}{(*models.Event)(nil), (*models.Ticket)(nil)} {
		_, err = bunDB.NewCreateTable().Model(model).Exec(context.Background())
		if err != nil {
			t.Fatalf("Failed to create table for %T: %v", model, err)
		}
	}
	return &db.DB{Bun: bunDB}, bunDB
}

func seedEvent(t *testing.T, bunDB *bun.DB, id string, cap int) {
	event := models.Event{
		ID:        id,
		Name:      "Test Event",
		StartsAt:  time.Now().Add(24 * time.Hour),
		Capacity:  cap,
		CreatedAt: time.Now(),
	}
	_, err := bunDB.NewInsert().Model(&event).Exec(context.Background())
	require.NoError(t, err)
}

func makeTicket(holderID, eventID, tierID, paymentRef string) models.Ticket {
	return models.Ticket{
		ID:         uuid.New().String(),
		HolderID:   holderID,
		EventID:    eventID,
		TierID:     tierID,
		PaymentRef: paymentRef,
		QRToken:    "TKT-QR-1-" + uuid.New().String()[:16],
		BackupCode: "123456",
		Status:     models.TicketValid,
		IssuedAt:   time.Now(),
	}
}

func mustCreate(t *testing.T, ticketDB *db.DB, ticket models.Ticket) {
	created, existing, err := ticketDB.CreateTicketIfAbsent(context.Background(), ticket)
	require.NoError(t, err)
	require.Nil(t, existing)
	require.True(t, created)
}

func committedFor(t *testing.T, bunDB *bun.DB, eventID string) int {
	var event models.Event
	require.NoError(t, bunDB.NewSelect().Model(&event).Where("id = ?", eventID).Scan(context.Background()))
	return event.Committed
}

func TestCreateAndGetTicket(t *testing.T) {
	ticketDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	seedEvent(t, bunDB, "ev1", 10)

	ticket := makeTicket("holder1", "ev1", "tier1", "pi_1")
	mustCreate(t, ticketDB, ticket)

	got, err := ticketDB.GetTicketByID(context.Background(), ticket.ID)
	assert.NoError(t, err)
	assert.Equal(t, ticket.ID, got.ID)
	assert.Equal(t, "holder1", got.HolderID)

	_, err = ticketDB.GetTicketByID(context.Background(), "missing")
	assert.Error(t, err)
}

func TestGetTicketByHolderEventTier(t *testing.T) {
	ticketDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	seedEvent(t, bunDB, "ev1", 10)

	// No ticket yet: nil, nil.
	got, err := ticketDB.GetTicketByHolderEventTier(context.Background(), "holder1", "ev1", "tier1")
	assert.NoError(t, err)
	assert.Nil(t, got)

	ticket := makeTicket("holder1", "ev1", "tier1", "pi_1")
	mustCreate(t, ticketDB, ticket)

	got, err = ticketDB.GetTicketByHolderEventTier(context.Background(), "holder1", "ev1", "tier1")
	assert.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, ticket.ID, got.ID)

	// Different tier misses.
	got, err = ticketDB.GetTicketByHolderEventTier(context.Background(), "holder1", "ev1", "tier2")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetTicketsByHolder(t *testing.T) {
	ticketDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	seedEvent(t, bunDB, "ev1", 10)

	for i := 0; i < 3; i++ {
		ticket := makeTicket("holder1", "ev1", fmt.Sprintf("tier%d", i), "pi_1")
		mustCreate(t, ticketDB, ticket)
	}
	other := makeTicket("holder2", "ev1", "tier1", "pi_2")
	mustCreate(t, ticketDB, other)

	list, err := ticketDB.GetTicketsByHolder(context.Background(), "holder1")
	assert.NoError(t, err)
	assert.Len(t, list, 3)
}

func TestCreateTicketIfAbsentCommitsOneSeatPerTriple(t *testing.T) {
	ticketDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	seedEvent(t, bunDB, "ev1", 10)

	first := makeTicket("holder1", "ev1", "tier1", "pi_1")
	mustCreate(t, ticketDB, first)
	assert.Equal(t, 1, committedFor(t, bunDB, "ev1"))

	// A retry for the same triple hands back the original ticket and
	// leaves the committed count alone.
	retry := makeTicket("holder1", "ev1", "tier1", "pi_1")
	created, existing, err := ticketDB.CreateTicketIfAbsent(context.Background(), retry)
	require.NoError(t, err)
	assert.False(t, created)
	require.NotNil(t, existing)
	assert.Equal(t, first.ID, existing.ID)
	assert.Equal(t, 1, committedFor(t, bunDB, "ev1"))
}

func TestCreateTicketIfAbsentSoldOut(t *testing.T) {
	ticketDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	seedEvent(t, bunDB, "ev1", 1)

	first := makeTicket("holder1", "ev1", "tier1", "pi_1")
	mustCreate(t, ticketDB, first)

	// A new holder gets nothing once the event is full.
	created, existing, err := ticketDB.CreateTicketIfAbsent(context.Background(), makeTicket("holder2", "ev1", "tier1", "pi_2"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Nil(t, existing)
	assert.Equal(t, 1, committedFor(t, bunDB, "ev1"))

	// A retry for the issued triple still replays even though the event
	// is sold out.
	created, existing, err = ticketDB.CreateTicketIfAbsent(context.Background(), makeTicket("holder1", "ev1", "tier1", "pi_1"))
	require.NoError(t, err)
	assert.False(t, created)
	require.NotNil(t, existing)
	assert.Equal(t, first.ID, existing.ID)
	assert.Equal(t, 1, committedFor(t, bunDB, "ev1"))
}

func TestCreateTicketsBulkCommitsAtomically(t *testing.T) {
	ticketDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	seedEvent(t, bunDB, "ev1", 100)

	batch := make([]models.Ticket, 60)
	for i := range batch {
		batch[i] = makeTicket("buyer", "ev1", "ga", "pi_bulk")
	}

	ok, err := ticketDB.CreateTicketsBulk(context.Background(), "ev1", batch)
	require.NoError(t, err)
	assert.True(t, ok)

	stored, err := ticketDB.GetTicketsByPaymentRef(context.Background(), "pi_bulk")
	require.NoError(t, err)
	assert.Len(t, stored, 60)

	var event models.Event
	require.NoError(t, bunDB.NewSelect().Model(&event).Where("id = ?", "ev1").Scan(context.Background()))
	assert.Equal(t, 60, event.Committed)
}

func TestCreateTicketsBulkRejectsWithoutCapacity(t *testing.T) {
	ticketDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	seedEvent(t, bunDB, "ev1", 49)

	batch := make([]models.Ticket, 50)
	for i := range batch {
		batch[i] = makeTicket("buyer", "ev1", "ga", "pi_bulk")
	}

	ok, err := ticketDB.CreateTicketsBulk(context.Background(), "ev1", batch)
	require.NoError(t, err)
	assert.False(t, ok)

	// Nothing was written and capacity is untouched.
	stored, err := ticketDB.GetTicketsByPaymentRef(context.Background(), "pi_bulk")
	require.NoError(t, err)
	assert.Empty(t, stored)

	var event models.Event
	require.NoError(t, bunDB.NewSelect().Model(&event).Where("id = ?", "ev1").Scan(context.Background()))
	assert.Equal(t, 0, event.Committed)
}

func TestReserveAndReleaseCapacity(t *testing.T) {
	ticketDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	seedEvent(t, bunDB, "ev1", 10)

	ok, err := ticketDB.ReserveCapacity(context.Background(), "ev1", 10)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ticketDB.ReserveCapacity(context.Background(), "ev1", 1)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, ticketDB.ReleaseCapacity(context.Background(), "ev1", 1))

	avail, err := ticketDB.AvailableCapacity(context.Background(), "ev1")
	require.NoError(t, err)
	assert.Equal(t, 1, avail)
}
