package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"

	"ms-groupbuy/internal/capacity"
	"ms-groupbuy/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// GetTicketByID → fetch one ticket by its ID
func (d *DB) GetTicketByID(ctx context.Context, id string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

// GetTicketByHolderEventTier returns the existing ticket for the triple, or
// nil when none exists. Used for idempotent re-issue.
func (d *DB) GetTicketByHolderEventTier(ctx context.Context, holderID, eventID, tierID string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("holder_id = ?", holderID).
		Where("event_id = ?", eventID).
		Where("tier_id = ?", tierID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &ticket, nil
}

// GetTicketsByPaymentRef returns every ticket issued against a payment
// reference, oldest first. Used for idempotent bulk re-issue.
func (d *DB) GetTicketsByPaymentRef(ctx context.Context, paymentRef string) ([]models.Ticket, error) {
	var ticketList []models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticketList).
		Where("payment_ref = ?", paymentRef).
		Order("issued_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return ticketList, nil
}

func (d *DB) GetTicketsByHolder(ctx context.Context, holderID string) ([]models.Ticket, error) {
	var ticketList []models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticketList).
		Where("holder_id = ?", holderID).
		Order("issued_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return ticketList, nil
}

// errTicketExists aborts the transaction so a replayed issue never keeps the
// seat it reserved.
var errTicketExists = errors.New("ticket already exists for holder, event and tier")

// CreateTicketIfAbsent commits one seat and inserts the ticket in a single
// transaction. The capacity UPDATE locks the event row, so the re-check of
// the (holder, event, tier) triple runs serialized against concurrent
// retries of the same purchase: exactly one retry inserts, the others roll
// back and return the winner's ticket. Returns (false, nil, nil) when the
// event is sold out and no ticket exists for the triple.
func (d *DB) CreateTicketIfAbsent(ctx context.Context, ticket models.Ticket) (bool, *models.Ticket, error) {
	var existing *models.Ticket
	created := false
	err := d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		reserved, err := capacity.NewLedger(tx).Reserve(ctx, ticket.EventID, 1)
		if err != nil {
			return err
		}

		var found models.Ticket
		err = tx.NewSelect().
			Model(&found).
			Where("holder_id = ?", ticket.HolderID).
			Where("event_id = ?", ticket.EventID).
			Where("tier_id = ?", ticket.TierID).
			Limit(1).
			Scan(ctx)
		if err == nil {
			existing = &found
			return errTicketExists
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		if !reserved {
			return nil
		}
		if _, err := tx.NewInsert().Model(&ticket).Exec(ctx); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		if errors.Is(err, errTicketExists) {
			return false, existing, nil
		}
		return false, nil, err
	}
	return created, nil, nil
}

// CreateTicketsBulk inserts the whole batch and commits the capacity
// increment in one transaction: either every ticket becomes visible and
// committed grows by len(batch), or nothing changes. Returns false when
// the event lacks capacity for the batch.
func (d *DB) CreateTicketsBulk(ctx context.Context, eventID string, batch []models.Ticket) (bool, error) {
	reserved := false
	err := d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		ledger := capacity.NewLedger(tx)
		ok, err := ledger.Reserve(ctx, eventID, len(batch))
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if _, err := tx.NewInsert().Model(&batch).Exec(ctx); err != nil {
			return err
		}
		reserved = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return reserved, nil
}

// ReserveCapacity and ReleaseCapacity delegate to the ledger outside a
// transaction, for collaborators that hold inventory ahead of issuance.
func (d *DB) ReserveCapacity(ctx context.Context, eventID string, n int) (bool, error) {
	return capacity.NewLedger(d.Bun).Reserve(ctx, eventID, n)
}

func (d *DB) ReleaseCapacity(ctx context.Context, eventID string, n int) error {
	return capacity.NewLedger(d.Bun).Release(ctx, eventID, n)
}

func (d *DB) AvailableCapacity(ctx context.Context, eventID string) (int, error) {
	return capacity.NewLedger(d.Bun).Available(ctx, eventID)
}
