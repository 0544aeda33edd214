package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"shop-service/apperrors"
	"shop-service/models"
	"shop-service/repository"
)

// CartService owns the soft reservations held in carts.
type CartService interface {
	AddToCart(ctx context.Context, p models.Principal, productID uuid.UUID, quantity int) (*models.Cart, error)
	// RemoveFromCart drops the whole line when quantity is nil or covers
	// the line, otherwise it shrinks the line by quantity.
	RemoveFromCart(ctx context.Context, p models.Principal, productID uuid.UUID, quantity *int) (*models.Cart, error)
	GetMyCart(ctx context.Context, p models.Principal) (*models.Cart, error)
	GetCart(ctx context.Context, p models.Principal, cartID uuid.UUID) (*models.Cart, error)
	ListCarts(ctx context.Context, p models.Principal, page, limit int) ([]models.Cart, models.PageMeta, error)
}

type cartServiceImpl struct {
	store  repository.Store
	ledger *InventoryLedger
	logger *zap.Logger
}

func NewCartService(store repository.Store, ledger *InventoryLedger, logger *zap.Logger) CartService {
	return &cartServiceImpl{store: store, ledger: ledger, logger: logger}
}

func (s *cartServiceImpl) AddToCart(ctx context.Context, p models.Principal, productID uuid.UUID, quantity int) (*models.Cart, error) {
	if quantity <= 0 {
		return nil, apperrors.ErrInvalidQuantity
	}

	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		// The product lock taken here serializes concurrent adds of the same
		// product, including the line lookup below.
		if err := s.ledger.Decrement(ctx, tx.Products(), productID, quantity); err != nil {
			return err
		}

		cart, err := tx.Carts().FindOrCreateByUserID(ctx, p.UserID)
		if err != nil {
			return err
		}

		line, err := tx.Carts().FindLineForUpdate(ctx, cart.ID, productID)
		if errors.Is(err, repository.ErrNotFound) {
			return tx.Carts().CreateLine(ctx, &models.CartLine{
				CartID:    cart.ID,
				ProductID: productID,
				Quantity:  quantity,
			})
		}
		if err != nil {
			return err
		}
		return tx.Carts().UpdateLineQuantity(ctx, line.ID, line.Quantity+quantity)
	})
	if err != nil {
		return nil, s.fail("AddToCart", p, productID, err)
	}

	s.logger.Info("Added to cart",
		zap.String("user_id", p.UserID.String()),
		zap.String("product_id", productID.String()),
		zap.Int("quantity", quantity),
	)
	return s.GetMyCart(ctx, p)
}

func (s *cartServiceImpl) RemoveFromCart(ctx context.Context, p models.Principal, productID uuid.UUID, quantity *int) (*models.Cart, error) {
	if quantity != nil && *quantity <= 0 {
		return nil, apperrors.ErrInvalidQuantity
	}

	var released int
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		cart, err := tx.Carts().FindByUserID(ctx, p.UserID)
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.ErrCartNotFound
		}
		if err != nil {
			return err
		}

		// Lock order is product then line, same as AddToCart.
		if _, err := tx.Products().FindByIDForUpdate(ctx, productID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperrors.ErrProductNotFound
			}
			return err
		}

		line, err := tx.Carts().FindLineForUpdate(ctx, cart.ID, productID)
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.ErrProductNotInCart
		}
		if err != nil {
			return err
		}

		if quantity == nil || *quantity >= line.Quantity {
			released = line.Quantity
			if err := tx.Carts().DeleteLine(ctx, line.ID); err != nil {
				return err
			}
		} else {
			released = *quantity
			if err := tx.Carts().UpdateLineQuantity(ctx, line.ID, line.Quantity-released); err != nil {
				return err
			}
		}

		return s.ledger.Increment(ctx, tx.Products(), productID, released)
	})
	if err != nil {
		return nil, s.fail("RemoveFromCart", p, productID, err)
	}

	s.logger.Info("Removed from cart",
		zap.String("user_id", p.UserID.String()),
		zap.String("product_id", productID.String()),
		zap.Int("released", released),
	)
	return s.GetMyCart(ctx, p)
}

func (s *cartServiceImpl) GetMyCart(ctx context.Context, p models.Principal) (*models.Cart, error) {
	cart, err := s.store.Carts().FindByUserID(ctx, p.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.ErrCartNotFound
	}
	if err != nil {
		return nil, internalError(err)
	}
	return cart, nil
}

func (s *cartServiceImpl) GetCart(ctx context.Context, p models.Principal, cartID uuid.UUID) (*models.Cart, error) {
	cart, err := s.store.Carts().FindByID(ctx, cartID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.ErrCartNotFound
	}
	if err != nil {
		return nil, internalError(err)
	}
	if !p.CanAccess(cart.UserID) {
		return nil, apperrors.ErrForbidden
	}
	return cart, nil
}

func (s *cartServiceImpl) ListCarts(ctx context.Context, p models.Principal, page, limit int) ([]models.Cart, models.PageMeta, error) {
	if !p.IsStaff {
		return nil, models.PageMeta{}, apperrors.ErrForbidden
	}

	page, limit = normalizePage(page, limit)
	carts, total, err := s.store.Carts().FindAll(ctx, page, limit)
	if err != nil {
		return nil, models.PageMeta{}, internalError(err)
	}
	return carts, pageMeta(page, limit, total), nil
}

func (s *cartServiceImpl) fail(op string, p models.Principal, productID uuid.UUID, err error) error {
	err = internalError(err)
	if apperrors.From(err).Code >= 500 {
		s.logger.Error(op+" failed",
			zap.String("user_id", p.UserID.String()),
			zap.String("product_id", productID.String()),
			zap.Error(err),
		)
	}
	return err
}
