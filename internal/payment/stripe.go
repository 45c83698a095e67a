package payment

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"ms-groupbuy/internal/logger"
	"ms-groupbuy/internal/models"
)

var (
	ErrStripeAPIError         = errors.New("stripe API error")
	ErrStripeClientInitFailed = errors.New("failed to initialize Stripe client")
)

// StripeService resolves payment references and issues refunds through the
// Stripe gateway. Payment collection itself happens upstream; this service
// only verifies and reverses.
type StripeService struct {
	client *client.API
	log    *logger.Logger
}

func NewStripeService(log *logger.Logger) (*StripeService, error) {
	stripeKey := os.Getenv("STRIPE_SECRET_KEY")
	if stripeKey == "" {
		log.Error("STRIPE", "STRIPE_SECRET_KEY environment variable not set")
		return nil, ErrStripeClientInitFailed
	}

	sc := client.New(stripeKey, nil)
	if sc == nil {
		log.Error("STRIPE", "Failed to initialize Stripe client")
		return nil, ErrStripeClientInitFailed
	}

	log.Info("STRIPE", "Stripe client initialized successfully")
	return &StripeService{client: sc, log: log}, nil
}

// ResolvePayment fetches the payment intent behind a reference and maps it
// to the coordinator's view. The holder who paid is carried in the intent's
// metadata by the checkout flow.
func (s *StripeService) ResolvePayment(ctx context.Context, ref string) (*models.PaymentInfo, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := s.client.PaymentIntents.Get(ref, params)
	if err != nil {
		s.log.Error("STRIPE", fmt.Sprintf("Failed to retrieve payment intent %s: %v", ref, err))
		return nil, fmt.Errorf("%w: %v", ErrStripeAPIError, err)
	}

	var status string
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		status = models.PaymentStatusSuccessful
	case stripe.PaymentIntentStatusProcessing,
		stripe.PaymentIntentStatusRequiresAction,
		stripe.PaymentIntentStatusRequiresConfirmation,
		stripe.PaymentIntentStatusRequiresPaymentMethod:
		status = models.PaymentStatusPending
	default:
		status = models.PaymentStatusFailed
	}

	return &models.PaymentInfo{
		Ref:     pi.ID,
		OwnerID: pi.Metadata["holder_id"],
		Amount:  float64(pi.Amount) / 100.0,
		Status:  status,
	}, nil
}

// Refund reverses the full amount of a payment intent.
func (s *StripeService) Refund(ctx context.Context, ref string) (*models.RefundResult, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(ref),
	}
	params.Context = ctx

	s.log.Info("STRIPE", fmt.Sprintf("Creating refund for payment intent %s", ref))
	refund, err := s.client.Refunds.New(params)
	if err != nil {
		s.log.Error("STRIPE", fmt.Sprintf("Failed to refund payment intent %s: %v", ref, err))
		return nil, fmt.Errorf("%w: %v", ErrStripeAPIError, err)
	}

	status := models.PaymentStatusRefunded
	if refund.Status == stripe.RefundStatusPending {
		status = models.PaymentStatusPending
	}
	return &models.RefundResult{Ref: refund.ID, Status: status}, nil
}
