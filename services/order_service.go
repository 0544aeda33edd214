package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"shop-service/apperrors"
	"shop-service/models"
	"shop-service/repository"
)

// CheckoutResult is what the client needs to confirm payment. ClientSecret
// is empty when the order had nothing to charge.
type CheckoutResult struct {
	Order        *models.Order
	ClientSecret string
}

type OrderService interface {
	PlaceOrder(ctx context.Context, p models.Principal, latitude, longitude float64) (*CheckoutResult, error)
	// ChangeStatus is staff only. Illegal edges are rejected unless force is
	// set, which overwrites the status unconditionally and is logged.
	ChangeStatus(ctx context.Context, p models.Principal, orderID uuid.UUID, status string, force bool) (*models.Order, error)
	GetOrder(ctx context.Context, p models.Principal, orderID uuid.UUID) (*models.Order, error)
	ListOrders(ctx context.Context, p models.Principal, page, limit int) ([]models.Order, models.PageMeta, error)
}

type orderServiceImpl struct {
	store    repository.Store
	ledger   *InventoryLedger
	gateway  PaymentGateway
	notifier Notifier
	currency string
	logger   *zap.Logger
}

func NewOrderService(
	store repository.Store,
	ledger *InventoryLedger,
	gateway PaymentGateway,
	notifier Notifier,
	currency string,
	logger *zap.Logger,
) OrderService {
	return &orderServiceImpl{
		store:    store,
		ledger:   ledger,
		gateway:  gateway,
		notifier: orNoop(notifier),
		currency: currency,
		logger:   logger,
	}
}

// PlaceOrder snapshots the caller's cart into a pending order and opens a
// payment intent for it. The gateway call happens between two short
// transactions; if it fails the order is deleted again. The cart is left
// as is until the payment succeeds.
func (s *orderServiceImpl) PlaceOrder(ctx context.Context, p models.Principal, latitude, longitude float64) (*CheckoutResult, error) {
	if !models.ValidCoordinates(latitude, longitude) {
		return nil, apperrors.ErrInvalidCoordinates
	}

	var order *models.Order
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		cart, err := tx.Carts().FindByUserID(ctx, p.UserID)
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.ErrCartNotFound
		}
		if err != nil {
			return err
		}

		order = snapshotCart(cart, latitude, longitude)
		return tx.Orders().Create(ctx, order)
	})
	if err != nil {
		return nil, s.fail("PlaceOrder", zap.String("user_id", p.UserID.String()), err)
	}

	if len(order.Lines) == 0 {
		s.logger.Info("Order placed with nothing to charge", zap.String("order_id", order.ID.String()))
		s.publish(models.EventOrderPlaced, order)
		return &CheckoutResult{Order: order}, nil
	}

	amount := toMinorUnits(order.TotalPrice)
	intent, err := s.gateway.CreatePaymentIntent(ctx, PaymentIntentRequest{
		Amount:   amount,
		Currency: s.currency,
		Metadata: map[string]string{
			"order_id": order.ID.String(),
			"user_id":  p.UserID.String(),
		},
		IdempotencyKey: "order-" + order.ID.String(),
	})
	if err != nil {
		s.logger.Error("Payment intent creation failed",
			zap.String("order_id", order.ID.String()),
			zap.Int64("amount", amount),
			zap.Error(err),
		)
		s.discardOrder(order.ID)
		return nil, apperrors.Wrap(apperrors.ErrPaymentGateway, err)
	}

	status := intent.Status
	if status == "" {
		status = models.TransactionStatusRequiresPaymentMethod
	}

	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		txn := &models.Transaction{
			ID:              uuid.New(),
			OrderID:         order.ID,
			UserID:          p.UserID,
			PaymentIntentID: intent.ID,
			Amount:          amount,
			Currency:        s.currency,
			Status:          status,
		}
		if err := tx.Transactions().Create(ctx, txn); err != nil {
			return err
		}
		order.PaymentIntentID = &intent.ID
		order.Transactions = []models.Transaction{*txn}
		return tx.Orders().Update(ctx, order)
	})
	if err != nil {
		s.logger.Error("Failed to record payment intent; discarding order",
			zap.String("order_id", order.ID.String()),
			zap.String("payment_intent_id", intent.ID),
			zap.Error(err),
		)
		s.discardOrder(order.ID)
		return nil, internalError(err)
	}

	s.logger.Info("Order placed",
		zap.String("order_id", order.ID.String()),
		zap.String("user_id", p.UserID.String()),
		zap.String("payment_intent_id", intent.ID),
		zap.Int64("amount", amount),
	)
	s.publish(models.EventOrderPlaced, order)

	return &CheckoutResult{Order: order, ClientSecret: intent.ClientSecret}, nil
}

func (s *orderServiceImpl) ChangeStatus(ctx context.Context, p models.Principal, orderID uuid.UUID, status string, force bool) (*models.Order, error) {
	if !p.IsStaff {
		return nil, apperrors.ErrForbidden
	}
	next, ok := models.ParseOrderStatus(status)
	if !ok {
		return nil, apperrors.ErrInvalidStatus
	}

	var (
		order   *models.Order
		changed bool
	)
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		o, err := tx.Orders().FindByIDForUpdate(ctx, orderID)
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.ErrOrderNotFound
		}
		if err != nil {
			return err
		}
		order = o

		prev := o.Status
		if prev == next {
			return nil
		}
		if !prev.CanTransitionTo(next) {
			if !force {
				return apperrors.ErrIllegalTransition
			}
			s.logger.Warn("Forcing order status",
				zap.String("order_id", o.ID.String()),
				zap.String("from", string(prev)),
				zap.String("to", string(next)),
				zap.String("staff_id", p.UserID.String()),
			)
		}

		// Paid orders no longer have a cart holding their units, so
		// cancelling one hands the stock back. Unpaid orders still have
		// their reservations in the cart.
		if next == models.OrderStatusCanceled && o.Paid {
			for _, line := range o.Lines {
				if err := s.ledger.Increment(ctx, tx.Products(), line.ProductID, line.Quantity); err != nil {
					if errors.Is(err, apperrors.ErrProductNotFound) {
						s.logger.Warn("Restock skipped for deleted product",
							zap.String("order_id", o.ID.String()),
							zap.String("product_id", line.ProductID.String()),
						)
						continue
					}
					return err
				}
			}
		}

		if next == models.OrderStatusCanceled {
			now := time.Now().UTC()
			o.CanceledAt = &now
		}
		o.Status = next
		changed = true
		return tx.Orders().Update(ctx, o)
	})
	if err != nil {
		return nil, s.fail("ChangeStatus", zap.String("order_id", orderID.String()), err)
	}

	if changed {
		s.logger.Info("Order status changed",
			zap.String("order_id", order.ID.String()),
			zap.String("status", string(order.Status)),
			zap.Bool("forced", force),
		)
		s.publish(models.EventOrderStatusChanged, order)
	}
	return order, nil
}

func (s *orderServiceImpl) GetOrder(ctx context.Context, p models.Principal, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.store.Orders().FindByID(ctx, orderID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.ErrOrderNotFound
	}
	if err != nil {
		return nil, internalError(err)
	}
	if !p.CanAccess(order.UserID) {
		return nil, apperrors.ErrForbidden
	}
	return order, nil
}

func (s *orderServiceImpl) ListOrders(ctx context.Context, p models.Principal, page, limit int) ([]models.Order, models.PageMeta, error) {
	if !p.IsStaff {
		return nil, models.PageMeta{}, apperrors.ErrForbidden
	}

	page, limit = normalizePage(page, limit)
	orders, total, err := s.store.Orders().FindAll(ctx, page, limit)
	if err != nil {
		return nil, models.PageMeta{}, internalError(err)
	}
	return orders, pageMeta(page, limit, total), nil
}

// discardOrder is the compensating step after a failed checkout. It runs on
// a fresh context so a canceled request still cleans up.
func (s *orderServiceImpl) discardOrder(orderID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.store.WithTx(ctx, func(tx repository.Store) error {
		return tx.Orders().Delete(ctx, orderID)
	}); err != nil {
		s.logger.Error("Failed to discard order after checkout failure",
			zap.String("order_id", orderID.String()),
			zap.Error(err),
		)
	}
}

func (s *orderServiceImpl) publish(eventType string, o *models.Order) {
	ev := models.OrderEvent{
		Type:       eventType,
		OrderID:    o.ID.String(),
		UserID:     o.UserID.String(),
		Status:     o.Status,
		TotalPrice: o.TotalPrice,
	}
	if o.PaymentIntentID != nil {
		ev.PaymentIntentID = *o.PaymentIntentID
	}
	s.notifier.Dispatch(ev)
}

func (s *orderServiceImpl) fail(op string, field zap.Field, err error) error {
	err = internalError(err)
	if apperrors.From(err).Code >= 500 {
		s.logger.Error(op+" failed", field, zap.Error(err))
	}
	return err
}

// snapshotCart copies the cart lines into a new pending order, freezing
// each line's effective price.
func snapshotCart(cart *models.Cart, latitude, longitude float64) *models.Order {
	order := &models.Order{
		ID:        uuid.New(),
		UserID:    cart.UserID,
		Status:    models.OrderStatusPending,
		Latitude:  latitude,
		Longitude: longitude,
	}
	for _, cl := range cart.Lines {
		order.Lines = append(order.Lines, models.OrderLine{
			ID:        uuid.New(),
			OrderID:   order.ID,
			ProductID: cl.ProductID,
			Quantity:  cl.Quantity,
			UnitPrice: cl.Product.EffectivePrice(),
		})
	}
	order.TotalPrice = models.OrderTotal(order.Lines)
	return order
}

// toMinorUnits rounds up to the next cent.
func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Ceil().IntPart()
}
