package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v80"
	"go.uber.org/zap"

	"shop-service/apperrors"
	"shop-service/models"
	"shop-service/repository"
)

// PaymentOutcome is what a gateway event means for an order.
type PaymentOutcome int

const (
	OutcomeIgnored PaymentOutcome = iota
	OutcomeSucceeded
	OutcomeFailed
)

// String returns the transaction status written for the outcome.
func (o PaymentOutcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return models.TransactionStatusSuccess
	case OutcomeFailed:
		return models.TransactionStatusFailed
	default:
		return models.TransactionStatusIgnored
	}
}

func ClassifyEvent(eventType string) PaymentOutcome {
	switch stripe.EventType(eventType) {
	case stripe.EventTypePaymentIntentSucceeded:
		return OutcomeSucceeded
	case stripe.EventTypePaymentIntentPaymentFailed:
		return OutcomeFailed
	default:
		return OutcomeIgnored
	}
}

// EventDeduper remembers gateway event ids that were already applied.
type EventDeduper interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

type WebhookService interface {
	HandleWebhook(ctx context.Context, payload []byte, sigHeader string) (PaymentOutcome, error)
}

var _ WebhookService = (*WebhookReconciler)(nil)

// WebhookReconciler verifies a gateway callback, locates the order it
// refers to and applies the payment outcome. Each step is usable on its own.
type WebhookReconciler struct {
	store    repository.Store
	gateway  PaymentGateway
	deduper  EventDeduper
	notifier Notifier
	logger   *zap.Logger
}

// NewWebhookReconciler builds a reconciler. deduper may be nil; replays are
// then absorbed by the idempotent apply step alone.
func NewWebhookReconciler(store repository.Store, gateway PaymentGateway, deduper EventDeduper, notifier Notifier, logger *zap.Logger) *WebhookReconciler {
	return &WebhookReconciler{
		store:    store,
		gateway:  gateway,
		deduper:  deduper,
		notifier: orNoop(notifier),
		logger:   logger,
	}
}

func (r *WebhookReconciler) HandleWebhook(ctx context.Context, payload []byte, sigHeader string) (PaymentOutcome, error) {
	event, err := r.Verify(payload, sigHeader)
	if err != nil {
		return OutcomeIgnored, err
	}

	outcome := ClassifyEvent(event.Type)
	r.logger.Info("Processing payment webhook",
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type),
		zap.String("payment_intent_id", event.PaymentIntentID),
		zap.Stringer("outcome", outcome),
	)

	if r.deduper != nil && event.ID != "" {
		seen, err := r.deduper.Seen(ctx, event.ID)
		if err != nil {
			r.logger.Warn("Webhook dedupe lookup failed", zap.String("event_id", event.ID), zap.Error(err))
		} else if seen {
			r.logger.Info("Skipping duplicate webhook", zap.String("event_id", event.ID))
			return outcome, nil
		}
	}

	if err := r.Apply(ctx, event.PaymentIntentID, outcome); err != nil {
		return outcome, err
	}

	if r.deduper != nil && event.ID != "" {
		if err := r.deduper.Mark(ctx, event.ID); err != nil {
			r.logger.Warn("Failed to record webhook event", zap.String("event_id", event.ID), zap.Error(err))
		}
	}
	return outcome, nil
}

// Verify authenticates the payload. It fails with ErrWebhookSecretMissing or
// ErrWebhookSignature.
func (r *WebhookReconciler) Verify(payload []byte, sigHeader string) (*WebhookEvent, error) {
	return r.gateway.VerifyWebhook(payload, sigHeader)
}

// Locate finds the order that carries intentID.
func (r *WebhookReconciler) Locate(ctx context.Context, intentID string) (*models.Order, error) {
	if intentID == "" {
		return nil, apperrors.ErrOrderNotFound
	}
	order, err := r.store.Orders().FindByPaymentIntentID(ctx, intentID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.ErrOrderNotFound
	}
	if err != nil {
		return nil, internalError(err)
	}
	return order, nil
}

// Apply moves local state to match outcome. Applying the same outcome twice
// leaves the same state as applying it once.
func (r *WebhookReconciler) Apply(ctx context.Context, intentID string, outcome PaymentOutcome) error {
	switch outcome {
	case OutcomeSucceeded:
		order, err := r.Locate(ctx, intentID)
		if err != nil {
			return err
		}
		return r.applySucceeded(ctx, order, intentID)
	default:
		return r.applyTerminalStatus(ctx, intentID, outcome)
	}
}

// applySucceeded marks the order paid and releases the user's cart. The
// order row stays locked for the whole transaction, so only the first
// delivery flips Paid and clears the cart.
//
// A canceled order is never marked paid: its units are still reserved in
// the cart, and the captured payment has to be refunded.
func (r *WebhookReconciler) applySucceeded(ctx context.Context, located *models.Order, intentID string) error {
	var (
		order          *models.Order
		firstPaid      bool
		refundRequired bool
	)
	err := r.store.WithTx(ctx, func(tx repository.Store) error {
		o, err := tx.Orders().FindByIDForUpdate(ctx, located.ID)
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.ErrOrderNotFound
		}
		if err != nil {
			return err
		}
		order = o

		switch {
		case o.Status == models.OrderStatusCanceled:
			refundRequired = !o.Paid && !intentSucceeded(o.Transactions, intentID)
		case !o.Paid:
			now := time.Now().UTC()
			o.Paid = true
			o.PaidAt = &now
			if o.Status == models.OrderStatusPending {
				o.Status = models.OrderStatusPaid
			}
			if err := tx.Orders().Update(ctx, o); err != nil {
				return err
			}
			if err := clearCart(ctx, tx, o.UserID); err != nil {
				return err
			}
			firstPaid = true
		}

		_, err = tx.Transactions().UpdateStatusByIntent(ctx, intentID, models.TransactionStatusSuccess)
		return err
	})
	if err != nil {
		return internalError(err)
	}

	switch {
	case firstPaid:
		r.logger.Info("Order paid",
			zap.String("order_id", order.ID.String()),
			zap.String("payment_intent_id", intentID),
		)
		r.dispatch(models.EventOrderPaid, order, intentID)
	case refundRequired:
		r.logger.Warn("Payment succeeded for canceled order; refund required",
			zap.String("order_id", order.ID.String()),
			zap.String("payment_intent_id", intentID),
		)
		r.dispatch(models.EventOrderRefundRequired, order, intentID)
	}
	return nil
}

func (r *WebhookReconciler) dispatch(eventType string, order *models.Order, intentID string) {
	r.notifier.Dispatch(models.OrderEvent{
		Type:            eventType,
		OrderID:         order.ID.String(),
		UserID:          order.UserID.String(),
		Status:          order.Status,
		TotalPrice:      order.TotalPrice,
		PaymentIntentID: intentID,
	})
}

func clearCart(ctx context.Context, tx repository.Store, userID uuid.UUID) error {
	cart, err := tx.Carts().FindByUserID(ctx, userID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil
	case err != nil:
		return err
	}
	return tx.Carts().ClearLines(ctx, cart.ID)
}

func intentSucceeded(txns []models.Transaction, intentID string) bool {
	for _, t := range txns {
		if t.PaymentIntentID == intentID && t.Status == models.TransactionStatusSuccess {
			return true
		}
	}
	return false
}

// applyTerminalStatus records failed or ignored on the intent's
// transactions. A transaction already marked success is never downgraded.
func (r *WebhookReconciler) applyTerminalStatus(ctx context.Context, intentID string, outcome PaymentOutcome) error {
	if intentID == "" {
		return nil
	}

	return internalErrorOrNil(r.store.WithTx(ctx, func(tx repository.Store) error {
		txns, err := tx.Transactions().FindByPaymentIntentID(ctx, intentID)
		if err != nil {
			return err
		}
		for _, t := range txns {
			if t.Status == models.TransactionStatusSuccess {
				r.logger.Info("Transaction already succeeded; keeping status",
					zap.String("payment_intent_id", intentID),
					zap.Stringer("outcome", outcome),
				)
				return nil
			}
		}

		n, err := tx.Transactions().UpdateStatusByIntent(ctx, intentID, outcome.String())
		if err != nil {
			return err
		}
		if n == 0 {
			r.logger.Info("No transaction for payment intent", zap.String("payment_intent_id", intentID))
		}
		return nil
	}))
}

func internalErrorOrNil(err error) error {
	if err == nil {
		return nil
	}
	return internalError(err)
}
