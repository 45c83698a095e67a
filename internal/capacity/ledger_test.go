package capacity_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"

	"ms-groupbuy/internal/capacity"
	"ms-groupbuy/internal/models"
)

func setupTestDB(t *testing.T) *bun.DB {
	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}
	// Each in-memory connection is its own database, so keep one open.
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	_, err = bunDB.NewCreateTable().Model((*models.Event)(nil)).Exec(context.Background())
	if err != nil {
		t.Fatalf("Failed to create events table: %v", err)
	}
	return bunDB
}

func seedEvent(t *testing.T, bunDB *bun.DB, id string, cap, committed int) {
	event := models.Event{
		ID:        id,
		Name:      "Test Event",
		StartsAt:  time.Now().Add(24 * time.Hour),
		Capacity:  cap,
		Committed: committed,
		CreatedAt: time.Now(),
	}
	_, err := bunDB.NewInsert().Model(&event).Exec(context.Background())
	require.NoError(t, err)
}

func committedFor(t *testing.T, bunDB *bun.DB, id string) int {
	var event models.Event
	err := bunDB.NewSelect().Model(&event).Where("id = ?", id).Scan(context.Background())
	require.NoError(t, err)
	return event.Committed
}

func TestReserveWithinCapacity(t *testing.T) {
	bunDB := setupTestDB(t)
	defer bunDB.Close()
	seedEvent(t, bunDB, "ev1", 100, 0)

	ledger := capacity.NewLedger(bunDB)

	ok, err := ledger.Reserve(context.Background(), "ev1", 40)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 40, committedFor(t, bunDB, "ev1"))

	// Exactly filling the remainder succeeds.
	ok, err = ledger.Reserve(context.Background(), "ev1", 60)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 100, committedFor(t, bunDB, "ev1"))

	// Nothing left.
	ok, err = ledger.Reserve(context.Background(), "ev1", 1)
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 100, committedFor(t, bunDB, "ev1"))
}

func TestReserveRejectsOverCapacity(t *testing.T) {
	bunDB := setupTestDB(t)
	defer bunDB.Close()
	seedEvent(t, bunDB, "ev1", 50, 0)

	ledger := capacity.NewLedger(bunDB)

	ok, err := ledger.Reserve(context.Background(), "ev1", 51)
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, committedFor(t, bunDB, "ev1"))
}

func TestReserveUnknownEvent(t *testing.T) {
	bunDB := setupTestDB(t)
	defer bunDB.Close()

	ledger := capacity.NewLedger(bunDB)

	ok, err := ledger.Reserve(context.Background(), "missing", 1)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestReserveInvalidCount(t *testing.T) {
	bunDB := setupTestDB(t)
	defer bunDB.Close()
	seedEvent(t, bunDB, "ev1", 10, 0)

	ledger := capacity.NewLedger(bunDB)

	_, err := ledger.Reserve(context.Background(), "ev1", 0)
	assert.Error(t, err)
	_, err = ledger.Reserve(context.Background(), "ev1", -5)
	assert.Error(t, err)
}

func TestReleaseFloorsAtZero(t *testing.T) {
	bunDB := setupTestDB(t)
	defer bunDB.Close()
	seedEvent(t, bunDB, "ev1", 100, 10)

	ledger := capacity.NewLedger(bunDB)

	err := ledger.Release(context.Background(), "ev1", 4)
	assert.NoError(t, err)
	assert.Equal(t, 6, committedFor(t, bunDB, "ev1"))

	// Releasing more than committed clamps to zero.
	err = ledger.Release(context.Background(), "ev1", 50)
	assert.NoError(t, err)
	assert.Equal(t, 0, committedFor(t, bunDB, "ev1"))
}

func TestAvailable(t *testing.T) {
	bunDB := setupTestDB(t)
	defer bunDB.Close()
	seedEvent(t, bunDB, "ev1", 100, 30)

	ledger := capacity.NewLedger(bunDB)

	avail, err := ledger.Available(context.Background(), "ev1")
	assert.NoError(t, err)
	assert.Equal(t, 70, avail)

	_, err = ledger.Available(context.Background(), "missing")
	assert.ErrorIs(t, err, capacity.ErrEventNotFound)
}

func TestConcurrentReserveNeverOversells(t *testing.T) {
	bunDB := setupTestDB(t)
	defer bunDB.Close()
	seedEvent(t, bunDB, "ev1", 5, 0)

	ledger := capacity.NewLedger(bunDB)

	var wg sync.WaitGroup
	results := make(chan bool, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := ledger.Reserve(context.Background(), "ev1", 1)
			if err != nil {
				t.Errorf("reserve failed: %v", err)
				return
			}
			results <- ok
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for ok := range results {
		if ok {
			wins++
		}
	}
	assert.Equal(t, 5, wins)
	assert.Equal(t, 5, committedFor(t, bunDB, "ev1"))
}
