package capacity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"ms-groupbuy/internal/models"
)

var ErrEventNotFound = errors.New("event not found")

// Ledger is the atomic accounting of an event's capacity vs committed
// count. Reservation and commitment are the same action: a credential is
// issued immediately on confirmed payment, there is no soft-hold phase.
type Ledger struct {
	Bun bun.IDB
}

func NewLedger(db bun.IDB) *Ledger {
	return &Ledger{Bun: db}
}

// Reserve atomically increments committed by n if n seats are still
// available, returning false without any change otherwise. The check and
// the increment are one conditional UPDATE so concurrent callers can never
// push committed past capacity.
func (l *Ledger) Reserve(ctx context.Context, eventID string, n int) (bool, error) {
	if n <= 0 {
		return false, fmt.Errorf("invalid reservation count %d", n)
	}

	res, err := l.Bun.NewUpdate().
		Model((*models.Event)(nil)).
		Set("committed = committed + ?", n).
		Where("id = ?", eventID).
		Where("committed + ? <= capacity", n).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to reserve capacity: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// Release decrements committed by n, floored at zero. Used to unwind a
// reservation whose downstream step failed.
func (l *Ledger) Release(ctx context.Context, eventID string, n int) error {
	if n <= 0 {
		return nil
	}

	_, err := l.Bun.NewUpdate().
		Model((*models.Event)(nil)).
		Set("committed = CASE WHEN committed - ? < 0 THEN 0 ELSE committed - ? END", n, n).
		Where("id = ?", eventID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to release capacity: %w", err)
	}
	return nil
}

// Available returns capacity - committed for the event.
func (l *Ledger) Available(ctx context.Context, eventID string) (int, error) {
	var event models.Event
	err := l.Bun.NewSelect().
		Model(&event).
		Where("id = ?", eventID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrEventNotFound
		}
		return 0, err
	}
	return event.Capacity - event.Committed, nil
}
