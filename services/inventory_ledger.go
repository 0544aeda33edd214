package services

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"shop-service/apperrors"
	"shop-service/repository"
)

// InventoryLedger moves units in and out of Product.Stock. It must be given
// a repository bound to the caller's transaction so the stock change
// commits or rolls back with the cart or order change that caused it.
type InventoryLedger struct{}

func NewInventoryLedger() *InventoryLedger {
	return &InventoryLedger{}
}

// Decrement locks the product row and takes qty units out of stock.
func (l *InventoryLedger) Decrement(ctx context.Context, products repository.ProductRepository, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return apperrors.ErrInvalidQuantity
	}

	p, err := products.FindByIDForUpdate(ctx, productID)
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.ErrProductNotFound
	}
	if err != nil {
		return err
	}

	if p.Stock < qty {
		return apperrors.ErrInsufficientStock
	}
	return products.UpdateStock(ctx, productID, p.Stock-qty)
}

// Increment locks the product row and returns qty units to stock.
func (l *InventoryLedger) Increment(ctx context.Context, products repository.ProductRepository, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return apperrors.ErrInvalidQuantity
	}

	p, err := products.FindByIDForUpdate(ctx, productID)
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.ErrProductNotFound
	}
	if err != nil {
		return err
	}

	return products.UpdateStock(ctx, productID, p.Stock+qty)
}
