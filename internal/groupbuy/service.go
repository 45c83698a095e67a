package groupbuy

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ms-groupbuy/internal/config"
	groupbuydb "ms-groupbuy/internal/groupbuy/db"
	"ms-groupbuy/internal/logger"
	"ms-groupbuy/internal/models"
	"ms-groupbuy/internal/utils"
)

const (
	minSlots = 2
	maxSlots = 5000
)

// DBLayer is the storage surface the coordinator needs.
type DBLayer interface {
	CreateGroupBuyWithSlots(ctx context.Context, gb models.GroupBuy, slots []models.Slot) (bool, error)
	GetGroupBuyByID(ctx context.Context, id string) (*models.GroupBuy, error)
	GetGroupBuyWithSlots(ctx context.Context, id string) (*models.GroupBuy, error)
	GetSlotByClaimLink(ctx context.Context, claimLink string) (*models.Slot, error)
	ClaimSlot(ctx context.Context, slotID, claimantID string) (bool, error)
	MarkSlotPaid(ctx context.Context, slotID, paymentRef string) (bool, error)
	CountUnpaidSlots(ctx context.Context, groupBuyID string) (int, error)
	TransitionStatus(ctx context.Context, groupBuyID, from, to string) (bool, error)
	ListExpiredActive(ctx context.Context, now time.Time) ([]models.GroupBuy, error)
	GetPaidSlots(ctx context.Context, groupBuyID string) ([]models.Slot, error)
	SetSlotTicket(ctx context.Context, slotID, ticketID string) error
	SetSlotRefund(ctx context.Context, slotID, status, refundErr string) error
	CountSlots(ctx context.Context, groupBuyID string) (int, int, error)
}

// Issuer mints one ticket per paid participant during completion fan-out.
// Capacity is committed inside the issuer, one seat per ticket.
type Issuer interface {
	IssueSingle(ctx context.Context, holderID, eventID, tierID, paymentRef string) (*models.Ticket, error)
}

// PaymentResolver verifies a participant's payment reference.
type PaymentResolver interface {
	ResolvePayment(ctx context.Context, ref string) (*models.PaymentInfo, error)
}

// Refunder reverses a participant's payment when a group buy expires.
type Refunder interface {
	Refund(ctx context.Context, paymentRef string) (*models.RefundResult, error)
}

// Notifier delivers a best-effort message to a participant.
type Notifier interface {
	Notify(userID, message string)
}

type EventPublisher interface {
	Publish(topic, key string, value []byte) error
}

type Service struct {
	db        DBLayer
	issuer    Issuer
	payments  PaymentResolver
	refunder  Refunder
	notifier  Notifier
	publisher EventPublisher
	logger    *logger.Logger
	topics    config.TopicConfig
	ttl       time.Duration
}

func NewService(db DBLayer, issuer Issuer, payments PaymentResolver, refunder Refunder, notifier Notifier, publisher EventPublisher, log *logger.Logger, topics config.TopicConfig, ttl time.Duration) *Service {
	return &Service{
		db:        db,
		issuer:    issuer,
		payments:  payments,
		refunder:  refunder,
		notifier:  notifier,
		publisher: publisher,
		logger:    log,
		topics:    topics,
		ttl:       ttl,
	}
}

// Initiate creates a group buy with totalSlots claimable slots. The event
// must have totalSlots seats available at creation time, but none are
// reserved yet: seats are committed per participant at completion, so an
// expired group buy never strands inventory.
func (s *Service) Initiate(ctx context.Context, initiatorID, eventID, tierID string, totalSlots int, pricePerSlot float64) (*models.GroupBuy, error) {
	if totalSlots < minSlots || totalSlots > maxSlots {
		return nil, ErrInvalidSlotCount
	}

	now := time.Now()
	gb := models.GroupBuy{
		ID:           uuid.New().String(),
		EventID:      eventID,
		TierID:       tierID,
		InitiatorID:  initiatorID,
		TotalSlots:   totalSlots,
		PricePerSlot: pricePerSlot,
		Status:       models.GroupBuyActive,
		ExpiresAt:    now.Add(s.ttl),
		CreatedAt:    now,
	}

	slots := make([]models.Slot, totalSlots)
	for i := range slots {
		slots[i] = models.Slot{
			ID:            uuid.New().String(),
			GroupBuyID:    gb.ID,
			ClaimLink:     utils.GenerateClaimLink(),
			PaymentStatus: models.PaymentPending,
			SettlementRef: utils.GenerateSettlementRef(),
		}
	}

	ok, err := s.db.CreateGroupBuyWithSlots(ctx, gb, slots)
	if err != nil {
		return nil, fmt.Errorf("failed to create group buy: %w", err)
	}
	if !ok {
		return nil, ErrInsufficientInventory
	}

	gb.Slots = slots
	s.logger.LogGroupBuy("INITIATED", gb.ID, fmt.Sprintf("%d slots for event %s, expires %s", totalSlots, eventID, gb.ExpiresAt.Format(time.RFC3339)))
	s.publishLifecycle(s.topics.GroupBuyCreated, &gb)
	return &gb, nil
}

// ClaimSlot binds the claimant to the slot behind claimLink. Claiming a slot
// you already hold returns it unchanged; a slot held by someone else is
// ErrAlreadyClaimed.
func (s *Service) ClaimSlot(ctx context.Context, claimLink, claimantID string) (*models.Slot, error) {
	slot, err := s.db.GetSlotByClaimLink(ctx, claimLink)
	if err != nil {
		if groupbuydb.IsNotFound(err) {
			return nil, ErrInvalidLink
		}
		return nil, fmt.Errorf("failed to look up claim link: %w", err)
	}

	if err := s.requireActive(ctx, slot.GroupBuyID); err != nil {
		return nil, err
	}

	if slot.ClaimantID == claimantID {
		return slot, nil
	}
	if slot.ClaimantID != "" {
		return nil, ErrAlreadyClaimed
	}

	won, err := s.db.ClaimSlot(ctx, slot.ID, claimantID)
	if err != nil {
		return nil, fmt.Errorf("failed to claim slot: %w", err)
	}
	if !won {
		// Lost the race. The winner may still have been this claimant
		// retrying through two concurrent requests.
		slot, err = s.db.GetSlotByClaimLink(ctx, claimLink)
		if err != nil {
			return nil, fmt.Errorf("failed to re-read slot: %w", err)
		}
		if slot.ClaimantID == claimantID {
			return slot, nil
		}
		return nil, ErrAlreadyClaimed
	}

	slot, err = s.db.GetSlotByClaimLink(ctx, claimLink)
	if err != nil {
		return nil, fmt.Errorf("failed to re-read slot: %w", err)
	}
	s.logger.LogGroupBuy("CLAIMED", slot.GroupBuyID, fmt.Sprintf("Slot %s claimed by %s", slot.ID, claimantID))
	return slot, nil
}

// RecordPayment records a confirmed payment against the claimant's slot and,
// when it was the last unpaid slot, completes the group buy. Completion runs
// at most once no matter how many payments land concurrently.
func (s *Service) RecordPayment(ctx context.Context, claimLink, claimantID, paymentRef string) (*models.Slot, error) {
	slot, err := s.db.GetSlotByClaimLink(ctx, claimLink)
	if err != nil {
		if groupbuydb.IsNotFound(err) {
			return nil, ErrInvalidLink
		}
		return nil, fmt.Errorf("failed to look up claim link: %w", err)
	}

	if err := s.requireActive(ctx, slot.GroupBuyID); err != nil {
		return nil, err
	}

	if slot.ClaimantID == "" || slot.ClaimantID != claimantID {
		return nil, ErrSlotNotClaimed
	}

	payment, err := s.payments.ResolvePayment(ctx, paymentRef)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve payment %s: %w", paymentRef, err)
	}
	if payment.Status != models.PaymentStatusSuccessful {
		return nil, ErrPaymentNotConfirmed
	}

	updated, err := s.db.MarkSlotPaid(ctx, slot.ID, paymentRef)
	if err != nil {
		return nil, fmt.Errorf("failed to record payment: %w", err)
	}
	if updated {
		s.logger.LogGroupBuy("PAYMENT", slot.GroupBuyID, fmt.Sprintf("Slot %s paid via %s", slot.ID, paymentRef))
		if err := s.maybeComplete(ctx, slot.GroupBuyID); err != nil {
			s.logger.Error("GROUPBUY", fmt.Sprintf("Completion check for %s failed: %v", slot.GroupBuyID, err))
		}
	}

	slot, err = s.db.GetSlotByClaimLink(ctx, claimLink)
	if err != nil {
		return nil, fmt.Errorf("failed to re-read slot: %w", err)
	}
	return slot, nil
}

// maybeComplete recounts unpaid slots and, when none remain, races for the
// active-to-completed transition. The conditional status update is the
// single gate: only the winner runs the fan-out.
func (s *Service) maybeComplete(ctx context.Context, groupBuyID string) error {
	unpaid, err := s.db.CountUnpaidSlots(ctx, groupBuyID)
	if err != nil {
		return err
	}
	if unpaid > 0 {
		return nil
	}

	won, err := s.db.TransitionStatus(ctx, groupBuyID, models.GroupBuyActive, models.GroupBuyCompleted)
	if err != nil {
		return err
	}
	if !won {
		return nil
	}

	s.logger.LogGroupBuy("COMPLETED", groupBuyID, "All slots paid")
	gb, err := s.db.GetGroupBuyByID(ctx, groupBuyID)
	if err != nil {
		return err
	}
	s.publishLifecycle(s.topics.GroupBuyCompleted, gb)
	_, err = s.Complete(ctx, gb)
	return err
}

// Complete fans ticket issuance out to every paid slot. Each participant is
// handled independently: one failed issuance is recorded in its outcome and
// never blocks the rest.
func (s *Service) Complete(ctx context.Context, gb *models.GroupBuy) ([]models.IssueOutcome, error) {
	slots, err := s.db.GetPaidSlots(ctx, gb.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load paid slots: %w", err)
	}

	outcomes := make([]models.IssueOutcome, 0, len(slots))
	for _, slot := range slots {
		outcome := models.IssueOutcome{SlotID: slot.ID, ClaimantID: slot.ClaimantID}

		ticket, err := s.issuer.IssueSingle(ctx, slot.ClaimantID, gb.EventID, gb.TierID, slot.PaymentRef)
		if err != nil {
			outcome.Error = err.Error()
			s.logger.Error("GROUPBUY", fmt.Sprintf("Ticket issuance for slot %s failed: %v", slot.ID, err))
		} else {
			outcome.Issued = true
			outcome.TicketID = ticket.ID
			if err := s.db.SetSlotTicket(ctx, slot.ID, ticket.ID); err != nil {
				s.logger.Error("GROUPBUY", fmt.Sprintf("Failed to record ticket %s on slot %s: %v", ticket.ID, slot.ID, err))
			}
			if s.notifier != nil {
				s.notifier.Notify(slot.ClaimantID, fmt.Sprintf("Your group buy %s completed. Ticket %s is ready.", gb.ID, ticket.ID))
			}
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

// Expire moves an overdue active group buy to expired and refunds every paid
// participant. An active group buy whose deadline is still ahead is refused
// with ErrNotExpired. No capacity needs unwinding since seats were never
// reserved. Refund failures are recorded per participant in the report; the
// expiration itself always stands. Returns nil outcomes when another caller
// already expired it.
func (s *Service) Expire(ctx context.Context, groupBuyID string) ([]models.RefundOutcome, error) {
	gb, err := s.db.GetGroupBuyByID(ctx, groupBuyID)
	if err != nil {
		if groupbuydb.IsNotFound(err) {
			return nil, ErrGroupBuyNotFound
		}
		return nil, fmt.Errorf("failed to load group buy: %w", err)
	}
	if gb.Status == models.GroupBuyActive && time.Now().Before(gb.ExpiresAt) {
		return nil, ErrNotExpired
	}

	won, err := s.db.TransitionStatus(ctx, groupBuyID, models.GroupBuyActive, models.GroupBuyExpired)
	if err != nil {
		return nil, fmt.Errorf("failed to expire group buy: %w", err)
	}
	if !won {
		return nil, nil
	}
	gb.Status = models.GroupBuyExpired

	slots, err := s.db.GetPaidSlots(ctx, groupBuyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load paid slots: %w", err)
	}

	outcomes := make([]models.RefundOutcome, 0, len(slots))
	for _, slot := range slots {
		outcome := models.RefundOutcome{
			SlotID:     slot.ID,
			ClaimantID: slot.ClaimantID,
			PaymentRef: slot.PaymentRef,
		}

		result, err := s.refunder.Refund(ctx, slot.PaymentRef)
		if err != nil {
			outcome.Error = err.Error()
			if dbErr := s.db.SetSlotRefund(ctx, slot.ID, "failed", err.Error()); dbErr != nil {
				s.logger.Error("GROUPBUY", fmt.Sprintf("Failed to record refund failure on slot %s: %v", slot.ID, dbErr))
			}
			s.logger.Error("GROUPBUY", fmt.Sprintf("Refund for slot %s failed: %v", slot.ID, err))
		} else {
			outcome.Refunded = true
			if dbErr := s.db.SetSlotRefund(ctx, slot.ID, result.Status, ""); dbErr != nil {
				s.logger.Error("GROUPBUY", fmt.Sprintf("Failed to record refund on slot %s: %v", slot.ID, dbErr))
			}
		}

		if s.notifier != nil {
			s.notifier.Notify(slot.ClaimantID, fmt.Sprintf("Group buy %s expired before filling. Your payment %s is being refunded.", groupBuyID, slot.PaymentRef))
		}
		outcomes = append(outcomes, outcome)
	}

	s.logger.LogGroupBuy("EXPIRED", groupBuyID, fmt.Sprintf("%d paid slots refunded", len(slots)))
	s.publishLifecycle(s.topics.GroupBuyExpired, gb)
	return outcomes, nil
}

// SweepExpired expires every active group buy whose deadline has passed.
// Returns how many were expired by this sweep.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	expired, err := s.db.ListExpiredActive(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to list expired group buys: %w", err)
	}

	swept := 0
	for _, gb := range expired {
		outcomes, err := s.Expire(ctx, gb.ID)
		if err != nil {
			s.logger.Error("GROUPBUY", fmt.Sprintf("Sweep failed for %s: %v", gb.ID, err))
			continue
		}
		if outcomes != nil {
			swept++
		}
	}
	if swept > 0 {
		s.logger.LogGroupBuy("SWEEP", "batch", fmt.Sprintf("Expired %d group buys", swept))
	}
	return swept, nil
}

// Progress reports claim and payment tallies for a group buy.
func (s *Service) Progress(ctx context.Context, groupBuyID string) (*models.GroupBuyProgress, error) {
	gb, err := s.db.GetGroupBuyByID(ctx, groupBuyID)
	if err != nil {
		if groupbuydb.IsNotFound(err) {
			return nil, ErrGroupBuyNotFound
		}
		return nil, fmt.Errorf("failed to load group buy: %w", err)
	}

	claimed, paid, err := s.db.CountSlots(ctx, groupBuyID)
	if err != nil {
		return nil, fmt.Errorf("failed to count slots: %w", err)
	}

	return &models.GroupBuyProgress{
		GroupBuyID: gb.ID,
		Status:     gb.Status,
		TotalSlots: gb.TotalSlots,
		Claimed:    claimed,
		Paid:       paid,
		ExpiresAt:  gb.ExpiresAt,
	}, nil
}

// GetGroupBuy returns the group buy with its slots, for the initiator's
// dashboard.
func (s *Service) GetGroupBuy(ctx context.Context, groupBuyID string) (*models.GroupBuy, error) {
	gb, err := s.db.GetGroupBuyWithSlots(ctx, groupBuyID)
	if err != nil {
		if groupbuydb.IsNotFound(err) {
			return nil, ErrGroupBuyNotFound
		}
		return nil, fmt.Errorf("failed to load group buy: %w", err)
	}
	return gb, nil
}

// requireActive rejects operations against completed or expired group buys.
// A group buy past its deadline is treated as expired even before the
// sweeper has processed it.
func (s *Service) requireActive(ctx context.Context, groupBuyID string) error {
	gb, err := s.db.GetGroupBuyByID(ctx, groupBuyID)
	if err != nil {
		if groupbuydb.IsNotFound(err) {
			return ErrGroupBuyNotFound
		}
		return fmt.Errorf("failed to load group buy: %w", err)
	}

	switch gb.Status {
	case models.GroupBuyExpired:
		return ErrExpired
	case models.GroupBuyCompleted:
		return ErrNotActive
	}
	if time.Now().After(gb.ExpiresAt) {
		return ErrExpired
	}
	return nil
}

func (s *Service) publishLifecycle(topic string, gb *models.GroupBuy) {
	if s.publisher == nil {
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"group_buy_id": gb.ID,
		"event_id":     gb.EventID,
		"status":       gb.Status,
		"total_slots":  gb.TotalSlots,
		"expires_at":   gb.ExpiresAt,
	})
	if err := s.publisher.Publish(topic, gb.ID, payload); err != nil {
		s.logger.Error("KAFKA", fmt.Sprintf("Failed to publish group buy event on %s: %v", topic, err))
	}
}
