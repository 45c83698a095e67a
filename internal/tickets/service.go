package tickets

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ms-groupbuy/internal/config"
	"ms-groupbuy/internal/logger"
	"ms-groupbuy/internal/models"
)

const (
	bulkMinQuantity = 50
	bulkMaxQuantity = 20000
)

// DBLayer is the storage surface the issuer needs.
type DBLayer interface {
	GetTicketByID(ctx context.Context, id string) (*models.Ticket, error)
	GetTicketByHolderEventTier(ctx context.Context, holderID, eventID, tierID string) (*models.Ticket, error)
	GetTicketsByPaymentRef(ctx context.Context, paymentRef string) ([]models.Ticket, error)
	GetTicketsByHolder(ctx context.Context, holderID string) ([]models.Ticket, error)
	CreateTicketIfAbsent(ctx context.Context, ticket models.Ticket) (bool, *models.Ticket, error)
	CreateTicketsBulk(ctx context.Context, eventID string, batch []models.Ticket) (bool, error)
	ReserveCapacity(ctx context.Context, eventID string, n int) (bool, error)
	ReleaseCapacity(ctx context.Context, eventID string, n int) error
	AvailableCapacity(ctx context.Context, eventID string) (int, error)
}

// PaymentResolver looks up a payment reference with the gateway.
type PaymentResolver interface {
	ResolvePayment(ctx context.Context, ref string) (*models.PaymentInfo, error)
}

// EventPublisher emits lifecycle events; failures are logged, never returned.
type EventPublisher interface {
	Publish(topic, key string, value []byte) error
}

// CredentialDeliverer pushes the issued credential to the holder out of band.
type CredentialDeliverer interface {
	DeliverCredential(holderID, ticketID, qrToken, backupCode string)
}

type Service struct {
	db        DBLayer
	payments  PaymentResolver
	publisher EventPublisher
	deliverer CredentialDeliverer
	logger    *logger.Logger
	topics    config.TopicConfig
}

func NewService(db DBLayer, payments PaymentResolver, publisher EventPublisher, deliverer CredentialDeliverer, log *logger.Logger, topics config.TopicConfig) *Service {
	return &Service{
		db:        db,
		payments:  payments,
		publisher: publisher,
		deliverer: deliverer,
		logger:    log,
		topics:    topics,
	}
}

// resolveConfirmedPayment fetches the payment and enforces that it succeeded
// and belongs to the holder.
func (s *Service) resolveConfirmedPayment(ctx context.Context, paymentRef, holderID string) (*models.PaymentInfo, error) {
	payment, err := s.payments.ResolvePayment(ctx, paymentRef)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve payment %s: %w", paymentRef, err)
	}
	if payment.Status != models.PaymentStatusSuccessful {
		return nil, ErrPaymentNotConfirmed
	}
	if payment.OwnerID != "" && payment.OwnerID != holderID {
		return nil, ErrPaymentOwnershipMismatch
	}
	return payment, nil
}

func newTicket(holderID, eventID, tierID, paymentRef string) models.Ticket {
	return models.Ticket{
		ID:         uuid.New().String(),
		HolderID:   holderID,
		EventID:    eventID,
		TierID:     tierID,
		PaymentRef: paymentRef,
		QRToken:    NewQRToken(),
		BackupCode: NewBackupCode(),
		Status:     models.TicketValid,
		IssuedAt:   time.Now(),
	}
}

// IssueSingle issues one ticket for (holder, event, tier) against a
// confirmed payment. Re-issuing for the same triple returns the existing
// ticket with fresh credentials never minted; concurrent retries of the same
// purchase are resolved inside the create transaction, so exactly one ticket
// exists and exactly one seat is committed no matter how the retries race.
func (s *Service) IssueSingle(ctx context.Context, holderID, eventID, tierID, paymentRef string) (*models.Ticket, error) {
	if _, err := s.resolveConfirmedPayment(ctx, paymentRef, holderID); err != nil {
		return nil, err
	}

	existing, err := s.db.GetTicketByHolderEventTier(ctx, holderID, eventID, tierID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing ticket: %w", err)
	}
	if existing != nil {
		s.logger.LogTicket("REISSUE", existing.ID, fmt.Sprintf("Returning existing ticket for holder %s", holderID))
		return existing, nil
	}

	ticket := newTicket(holderID, eventID, tierID, paymentRef)
	created, winner, err := s.db.CreateTicketIfAbsent(ctx, ticket)
	if err != nil {
		return nil, fmt.Errorf("failed to create ticket: %w", err)
	}
	if winner != nil {
		s.logger.LogTicket("REISSUE", winner.ID, fmt.Sprintf("Returning existing ticket for holder %s", holderID))
		return winner, nil
	}
	if !created {
		return nil, ErrInsufficientCapacity
	}

	s.logger.LogTicket("ISSUED", ticket.ID, fmt.Sprintf("Issued to holder %s for event %s", holderID, eventID))
	s.publishTicketIssued(ticket)
	if s.deliverer != nil {
		s.deliverer.DeliverCredential(holderID, ticket.ID, ticket.QRToken, ticket.BackupCode)
	}
	return &ticket, nil
}

// IssueBulk issues quantity tickets atomically against one payment
// reference. A repeated call with the same reference replays the original
// batch instead of issuing again.
func (s *Service) IssueBulk(ctx context.Context, holderID, eventID, tierID, paymentRef string, quantity int) (*models.BulkIssue, error) {
	if quantity < bulkMinQuantity || quantity > bulkMaxQuantity {
		return nil, ErrInvalidQuantity
	}

	payment, err := s.resolveConfirmedPayment(ctx, paymentRef, holderID)
	if err != nil {
		return nil, err
	}

	existing, err := s.db.GetTicketsByPaymentRef(ctx, paymentRef)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing batch: %w", err)
	}
	if len(existing) > 0 {
		if len(existing) != quantity {
			return nil, ErrPaymentRefReused
		}
		s.logger.LogTicket("REISSUE", paymentRef, fmt.Sprintf("Replaying bulk batch of %d tickets", len(existing)))
		return s.assembleBulk(existing, payment.Amount)
	}

	batch := make([]models.Ticket, quantity)
	seen := make(map[string]struct{}, quantity)
	for i := range batch {
		t := newTicket(holderID, eventID, tierID, paymentRef)
		for {
			if _, dup := seen[t.QRToken]; !dup {
				break
			}
			t.QRToken = NewQRToken()
		}
		seen[t.QRToken] = struct{}{}
		batch[i] = t
	}

	ok, err := s.db.CreateTicketsBulk(ctx, eventID, batch)
	if err != nil {
		return nil, fmt.Errorf("failed to issue bulk batch: %w", err)
	}
	if !ok {
		return nil, ErrInsufficientCapacity
	}

	s.logger.LogTicket("BULK", paymentRef, fmt.Sprintf("Issued %d tickets for event %s", quantity, eventID))
	s.publishBulkIssued(eventID, holderID, paymentRef, quantity)
	return s.assembleBulk(batch, payment.Amount)
}

func (s *Service) assembleBulk(batch []models.Ticket, amount float64) (*models.BulkIssue, error) {
	manifest, err := BuildManifest(batch)
	if err != nil {
		return nil, fmt.Errorf("failed to build manifest: %w", err)
	}
	return &models.BulkIssue{
		Tickets:  batch,
		Manifest: manifest,
		Shares:   SplitPayment(amount, len(batch)),
	}, nil
}

// GetTicketsByHolder lists a holder's tickets with status counts.
func (s *Service) GetTicketsByHolder(ctx context.Context, holderID string) (*models.HolderTickets, error) {
	ticketList, err := s.db.GetTicketsByHolder(ctx, holderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get tickets for holder %s: %w", holderID, err)
	}

	result := &models.HolderTickets{Tickets: ticketList, Total: len(ticketList)}
	for _, t := range ticketList {
		switch t.Status {
		case models.TicketValid:
			result.Valid++
		case models.TicketUsed:
			result.Used++
		}
	}
	return result, nil
}

// GetTicket fetches one ticket, hiding its existence from non-owners.
func (s *Service) GetTicket(ctx context.Context, ticketID, holderID string) (*models.Ticket, error) {
	ticket, err := s.db.GetTicketByID(ctx, ticketID)
	if err != nil {
		return nil, ErrTicketNotFound
	}
	if ticket.HolderID != holderID {
		return nil, ErrTicketNotFound
	}
	return ticket, nil
}

// CheckAndReserveCapacity exposes the conditional reserve for collaborators
// that hold inventory ahead of issuance.
func (s *Service) CheckAndReserveCapacity(ctx context.Context, eventID string, n int) (bool, error) {
	return s.db.ReserveCapacity(ctx, eventID, n)
}

func (s *Service) ReleaseCapacity(ctx context.Context, eventID string, n int) error {
	return s.db.ReleaseCapacity(ctx, eventID, n)
}

func (s *Service) AvailableCapacity(ctx context.Context, eventID string) (int, error) {
	return s.db.AvailableCapacity(ctx, eventID)
}

func (s *Service) publishTicketIssued(ticket models.Ticket) {
	if s.publisher == nil {
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"ticket_id": ticket.ID,
		"holder_id": ticket.HolderID,
		"event_id":  ticket.EventID,
		"tier_id":   ticket.TierID,
		"issued_at": ticket.IssuedAt,
	})
	if err := s.publisher.Publish(s.topics.TicketIssued, ticket.ID, payload); err != nil {
		s.logger.Error("KAFKA", fmt.Sprintf("Failed to publish ticket issued event: %v", err))
	}
}

func (s *Service) publishBulkIssued(eventID, holderID, paymentRef string, quantity int) {
	if s.publisher == nil {
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"event_id":    eventID,
		"holder_id":   holderID,
		"payment_ref": paymentRef,
		"quantity":    quantity,
	})
	if err := s.publisher.Publish(s.topics.TicketIssued, paymentRef, payload); err != nil {
		s.logger.Error("KAFKA", fmt.Sprintf("Failed to publish bulk issued event: %v", err))
	}
}
