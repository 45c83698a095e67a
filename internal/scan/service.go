package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ms-groupbuy/internal/config"
	"ms-groupbuy/internal/logger"
	"ms-groupbuy/internal/models"
	scandb "ms-groupbuy/internal/scan/db"
)

// DBLayer is the storage surface the verifier needs.
type DBLayer interface {
	GetTicketByQRToken(ctx context.Context, qrToken string) (*models.Ticket, error)
	GetTicketByBackupCode(ctx context.Context, backupCode string) (*models.Ticket, error)
	MarkUsed(ctx context.Context, ticketID, scannedBy, location string, usedAt time.Time) (bool, error)
	InsertScanRecord(ctx context.Context, record models.ScanRecord) error
	GetScanHistory(ctx context.Context, ticketID string) ([]models.ScanRecord, error)
}

type EventPublisher interface {
	Publish(topic, key string, value []byte) error
}

// ScanContext carries who scanned, where, and with what device.
type ScanContext struct {
	ScannedBy  string
	Location   string
	DeviceInfo string
}

type Service struct {
	db        DBLayer
	publisher EventPublisher
	logger    *logger.Logger
	topics    config.TopicConfig
}

func NewService(db DBLayer, publisher EventPublisher, log *logger.Logger, topics config.TopicConfig) *Service {
	return &Service{db: db, publisher: publisher, logger: log, topics: topics}
}

// resolve finds the ticket behind a credential, preferring the QR token and
// falling back to the backup code.
func (s *Service) resolve(ctx context.Context, qrToken, backupCode string) (*models.Ticket, error) {
	if qrToken != "" {
		ticket, err := s.db.GetTicketByQRToken(ctx, qrToken)
		if err == nil {
			return ticket, nil
		}
		if !scandb.IsNotFound(err) {
			return nil, err
		}
	}
	if backupCode != "" {
		ticket, err := s.db.GetTicketByBackupCode(ctx, backupCode)
		if err == nil {
			return ticket, nil
		}
		if !scandb.IsNotFound(err) {
			return nil, err
		}
	}
	return nil, ErrTicketNotFound
}

// Verify checks a credential without consuming it. Every attempt against a
// known ticket is appended to the scan log; a credential that resolves to
// nothing produces an invalid result with no record to attach it to.
func (s *Service) Verify(ctx context.Context, qrToken, backupCode string, sc ScanContext) (*models.VerificationResult, error) {
	ticket, err := s.resolve(ctx, qrToken, backupCode)
	if err != nil {
		if err == ErrTicketNotFound {
			return &models.VerificationResult{
				Valid:   false,
				Result:  models.ScanInvalid,
				Message: "No ticket matches this credential",
			}, nil
		}
		return nil, err
	}

	result := s.classify(ticket)
	s.appendRecord(ctx, ticket.ID, sc, result.Result)

	if result.Result == models.ScanDuplicate {
		result.History, _ = s.db.GetScanHistory(ctx, ticket.ID)
	}
	s.logger.LogScan(result.Result, ticket.ID, fmt.Sprintf("Verified by %s at %s", sc.ScannedBy, sc.Location))
	return result, nil
}

// MarkUsed consumes a valid credential. The valid-to-used transition is
// atomic, so concurrent scanners racing on the same ticket produce exactly
// one success and duplicates for the rest.
func (s *Service) MarkUsed(ctx context.Context, qrToken, backupCode string, sc ScanContext) (*models.VerificationResult, error) {
	ticket, err := s.resolve(ctx, qrToken, backupCode)
	if err != nil {
		if err == ErrTicketNotFound {
			return &models.VerificationResult{
				Valid:   false,
				Result:  models.ScanInvalid,
				Message: "No ticket matches this credential",
			}, nil
		}
		return nil, err
	}

	usedAt := time.Now()
	won, err := s.db.MarkUsed(ctx, ticket.ID, sc.ScannedBy, sc.Location, usedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to mark ticket used: %w", err)
	}

	var result *models.VerificationResult
	if won {
		result = &models.VerificationResult{
			Valid:    true,
			Result:   models.ScanSuccess,
			Message:  "Ticket admitted",
			TicketID: ticket.ID,
			HolderID: ticket.HolderID,
			EventID:  ticket.EventID,
			TierID:   ticket.TierID,
			UsedAt:   usedAt,
		}
		s.publishScanned(ticket, sc, usedAt)
	} else {
		// Lost the transition: the ticket was already used, cancelled
		// or refunded. Re-classify from current state.
		ticket, err = s.resolve(ctx, qrToken, backupCode)
		if err != nil {
			return nil, err
		}
		result = s.classify(ticket)
		if result.Result == models.ScanSuccess {
			result = &models.VerificationResult{
				Valid:    false,
				Result:   models.ScanDuplicate,
				Message:  "Ticket has already been used",
				TicketID: ticket.ID,
				HolderID: ticket.HolderID,
				EventID:  ticket.EventID,
				TierID:   ticket.TierID,
				UsedAt:   ticket.UsedAt,
			}
		}
	}

	s.appendRecord(ctx, ticket.ID, sc, result.Result)
	// Any refused admission carries the scan history so the operator can
	// show when and where the ticket was seen before.
	if !result.Valid {
		result.History, _ = s.db.GetScanHistory(ctx, ticket.ID)
	}
	s.logger.LogScan(result.Result, ticket.ID, fmt.Sprintf("Scanned by %s at %s", sc.ScannedBy, sc.Location))
	return result, nil
}

// History returns a ticket's scan records, newest first.
func (s *Service) History(ctx context.Context, ticketID string) ([]models.ScanRecord, error) {
	records, err := s.db.GetScanHistory(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("failed to load scan history: %w", err)
	}
	return records, nil
}

// classify maps a ticket's current status to a verification result. Success
// here means "would admit", it does not consume the ticket.
func (s *Service) classify(ticket *models.Ticket) *models.VerificationResult {
	result := &models.VerificationResult{
		TicketID: ticket.ID,
		HolderID: ticket.HolderID,
		EventID:  ticket.EventID,
		TierID:   ticket.TierID,
	}
	switch ticket.Status {
	case models.TicketValid:
		result.Valid = true
		result.Result = models.ScanSuccess
		result.Message = "Ticket is valid"
	case models.TicketUsed:
		result.Result = models.ScanDuplicate
		result.Message = "Ticket has already been used"
		result.UsedAt = ticket.UsedAt
	default:
		result.Result = models.ScanInvalid
		result.Message = fmt.Sprintf("Ticket is %s", ticket.Status)
	}
	return result
}

func (s *Service) appendRecord(ctx context.Context, ticketID string, sc ScanContext, result string) {
	record := models.ScanRecord{
		ID:         uuid.New().String(),
		TicketID:   ticketID,
		ScannedBy:  sc.ScannedBy,
		Location:   sc.Location,
		DeviceInfo: sc.DeviceInfo,
		Result:     result,
		ScannedAt:  time.Now(),
	}
	if err := s.db.InsertScanRecord(ctx, record); err != nil {
		s.logger.Error("SCAN", fmt.Sprintf("Failed to append scan record for ticket %s: %v", ticketID, err))
	}
}

func (s *Service) publishScanned(ticket *models.Ticket, sc ScanContext, usedAt time.Time) {
	if s.publisher == nil {
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"ticket_id":  ticket.ID,
		"holder_id":  ticket.HolderID,
		"event_id":   ticket.EventID,
		"scanned_by": sc.ScannedBy,
		"location":   sc.Location,
		"used_at":    usedAt,
	})
	if err := s.publisher.Publish(s.topics.TicketScanned, ticket.ID, payload); err != nil {
		s.logger.Error("KAFKA", fmt.Sprintf("Failed to publish ticket scanned event: %v", err))
	}
}
