package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"ms-groupbuy/internal/capacity"
	"ms-groupbuy/internal/models"
)

type DB struct {
	Bun *bun.DB
}

// CreateGroupBuyWithSlots persists the group buy plus its slots in one
// transaction. Returns false without side effects when the event cannot cover
// totalSlots seats. This is an availability check, not a reservation: seats
// are committed per participant when the group buy completes, since it may
// expire without ever filling.
func (d *DB) CreateGroupBuyWithSlots(ctx context.Context, gb models.GroupBuy, slots []models.Slot) (bool, error) {
	created := false
	err := d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		available, err := capacity.NewLedger(tx).Available(ctx, gb.EventID)
		if err != nil {
			return err
		}
		if available < gb.TotalSlots {
			return nil
		}
		if _, err := tx.NewInsert().Model(&gb).Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewInsert().Model(&slots).Exec(ctx); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

func (d *DB) GetGroupBuyByID(ctx context.Context, id string) (*models.GroupBuy, error) {
	var gb models.GroupBuy
	err := d.Bun.NewSelect().
		Model(&gb).
		Where("gb.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &gb, nil
}

// GetGroupBuyWithSlots loads the group buy and all its slots.
func (d *DB) GetGroupBuyWithSlots(ctx context.Context, id string) (*models.GroupBuy, error) {
	var gb models.GroupBuy
	err := d.Bun.NewSelect().
		Model(&gb).
		Relation("Slots").
		Where("gb.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &gb, nil
}

func (d *DB) GetSlotByClaimLink(ctx context.Context, claimLink string) (*models.Slot, error) {
	var slot models.Slot
	err := d.Bun.NewSelect().
		Model(&slot).
		Where("claim_link = ?", claimLink).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

// ClaimSlot binds a participant to an unclaimed slot. The bind is a single
// conditional UPDATE, so two racing claimants can never both win.
func (d *DB) ClaimSlot(ctx context.Context, slotID, claimantID string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Slot)(nil)).
		Set("claimant_id = ?", claimantID).
		Set("claimed_at = ?", time.Now()).
		Where("id = ?", slotID).
		Where("claimant_id = ''").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// MarkSlotPaid records a confirmed payment against a claimed slot. Only
// transitions pending to paid; a replayed confirmation affects zero rows.
func (d *DB) MarkSlotPaid(ctx context.Context, slotID, paymentRef string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Slot)(nil)).
		Set("payment_status = ?", models.PaymentPaid).
		Set("payment_ref = ?", paymentRef).
		Set("paid_at = ?", time.Now()).
		Where("id = ?", slotID).
		Where("payment_status = ?", models.PaymentPending).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// CountUnpaidSlots returns how many slots of the group buy are still
// awaiting payment.
func (d *DB) CountUnpaidSlots(ctx context.Context, groupBuyID string) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.Slot)(nil)).
		Where("group_buy_id = ?", groupBuyID).
		Where("payment_status != ?", models.PaymentPaid).
		Count(ctx)
}

// TransitionStatus moves the group buy from one status to another only if it
// is still in the expected status. Exactly one caller wins a transition out
// of active; everyone else sees false.
func (d *DB) TransitionStatus(ctx context.Context, groupBuyID, from, to string) (bool, error) {
	q := d.Bun.NewUpdate().
		Model((*models.GroupBuy)(nil)).
		Set("status = ?", to).
		Where("id = ?", groupBuyID).
		Where("status = ?", from)
	if to == models.GroupBuyCompleted {
		q = q.Set("completed_at = ?", time.Now())
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// ListExpiredActive returns active group buys whose deadline has passed.
func (d *DB) ListExpiredActive(ctx context.Context, now time.Time) ([]models.GroupBuy, error) {
	var expired []models.GroupBuy
	err := d.Bun.NewSelect().
		Model(&expired).
		Where("status = ?", models.GroupBuyActive).
		Where("expires_at <= ?", now).
		Order("expires_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return expired, nil
}

// GetPaidSlots returns the slots of a group buy that hold a confirmed
// payment, the population for completion fan-out and for refunds.
func (d *DB) GetPaidSlots(ctx context.Context, groupBuyID string) ([]models.Slot, error) {
	var slots []models.Slot
	err := d.Bun.NewSelect().
		Model(&slots).
		Where("group_buy_id = ?", groupBuyID).
		Where("payment_status = ?", models.PaymentPaid).
		Order("claimed_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return slots, nil
}

func (d *DB) SetSlotTicket(ctx context.Context, slotID, ticketID string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Slot)(nil)).
		Set("ticket_id = ?", ticketID).
		Where("id = ?", slotID).
		Exec(ctx)
	return err
}

func (d *DB) SetSlotRefund(ctx context.Context, slotID, status, refundErr string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Slot)(nil)).
		Set("refund_status = ?", status).
		Set("refund_error = ?", refundErr).
		Where("id = ?", slotID).
		Exec(ctx)
	return err
}

// CountSlots returns (claimed, paid) tallies for progress display.
func (d *DB) CountSlots(ctx context.Context, groupBuyID string) (int, int, error) {
	claimed, err := d.Bun.NewSelect().
		Model((*models.Slot)(nil)).
		Where("group_buy_id = ?", groupBuyID).
		Where("claimant_id != ''").
		Count(ctx)
	if err != nil {
		return 0, 0, err
	}
	paid, err := d.Bun.NewSelect().
		Model((*models.Slot)(nil)).
		Where("group_buy_id = ?", groupBuyID).
		Where("payment_status = ?", models.PaymentPaid).
		Count(ctx)
	if err != nil {
		return 0, 0, err
	}
	return claimed, paid, nil
}

// IsNotFound reports whether err is the driver's no-rows sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
