package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// ErrNotFound is returned by every repository lookup that matches no row.
var ErrNotFound = errors.New("record not found")

// Store groups the repositories that share one database handle. A Store
// handed to a WithTx callback is bound to that transaction.
type Store interface {
	Products() ProductRepository
	Carts() CartRepository
	Orders() OrderRepository
	Transactions() TransactionRepository
	WithTx(ctx context.Context, fn func(tx Store) error) error
}

// GormStore implements Store on a *gorm.DB.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a Store backed by db.
func NewGormStore(db *gorm.DB) Store {
	return &GormStore{db: db}
}

func (s *GormStore) Products() ProductRepository         { return NewGormProductRepository(s.db) }
func (s *GormStore) Carts() CartRepository               { return NewGormCartRepository(s.db) }
func (s *GormStore) Orders() OrderRepository             { return NewGormOrderRepository(s.db) }
func (s *GormStore) Transactions() TransactionRepository { return NewGormTransactionRepository(s.db) }

// WithTx runs fn inside a database transaction. Returning an error from fn
// rolls everything back.
func (s *GormStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func pageOffset(page, limit int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * limit
}
