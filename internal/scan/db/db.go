package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"ms-groupbuy/internal/models"
)

type DB struct {
	Bun *bun.DB
}

func (d *DB) GetTicketByQRToken(ctx context.Context, qrToken string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("qr_token = ?", qrToken).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

// GetTicketByBackupCode resolves the fallback credential. Backup codes are
// not unique; of the tickets sharing one, the oldest still-valid ticket
// wins, falling back to the oldest overall so duplicates still report.
func (d *DB) GetTicketByBackupCode(ctx context.Context, backupCode string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("backup_code = ?", backupCode).
		Where("status = ?", models.TicketValid).
		Order("issued_at ASC").
		Limit(1).
		Scan(ctx)
	if err == nil {
		return &ticket, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	err = d.Bun.NewSelect().
		Model(&ticket).
		Where("backup_code = ?", backupCode).
		Order("issued_at ASC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

// MarkUsed flips a valid ticket to used, stamping the scan context. The
// transition is a single conditional UPDATE: exactly one scanner wins it,
// every replay affects zero rows.
func (d *DB) MarkUsed(ctx context.Context, ticketID, scannedBy, location string, usedAt time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("status = ?", models.TicketUsed).
		Set("used_at = ?", usedAt).
		Set("scanned_by = ?", scannedBy).
		Set("scan_location = ?", location).
		Where("id = ?", ticketID).
		Where("status = ?", models.TicketValid).
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

// InsertScanRecord appends to the scan log. Records are append-only.
func (d *DB) InsertScanRecord(ctx context.Context, record models.ScanRecord) error {
	_, err := d.Bun.NewInsert().Model(&record).Exec(ctx)
	return err
}

// GetScanHistory returns a ticket's scan records, newest first.
func (d *DB) GetScanHistory(ctx context.Context, ticketID string) ([]models.ScanRecord, error) {
	var records []models.ScanRecord
	err := d.Bun.NewSelect().
		Model(&records).
		Where("ticket_id = ?", ticketID).
		Order("scanned_at DESC", "id DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
