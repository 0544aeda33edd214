package repository

import (
	"context"

	"gorm.io/gorm"

	"shop-service/models"
)

type TransactionRepository interface {
	Create(ctx context.Context, tx *models.Transaction) error
	FindByPaymentIntentID(ctx context.Context, intentID string) ([]models.Transaction, error)
	// UpdateStatusByIntent sets status on every transaction for intentID and
	// returns how many rows matched.
	UpdateStatusByIntent(ctx context.Context, intentID, status string) (int64, error)
}

type GormTransactionRepository struct {
	db *gorm.DB
}

func NewGormTransactionRepository(db *gorm.DB) TransactionRepository {
	return &GormTransactionRepository{db: db}
}

func (r *GormTransactionRepository) Create(ctx context.Context, tx *models.Transaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

func (r *GormTransactionRepository) FindByPaymentIntentID(ctx context.Context, intentID string) ([]models.Transaction, error) {
	var txs []models.Transaction
	if err := r.db.WithContext(ctx).
		Where("payment_intent_id = ?", intentID).
		Order("created_at ASC").
		Find(&txs).Error; err != nil {
		return nil, err
	}
	return txs, nil
}

func (r *GormTransactionRepository) UpdateStatusByIntent(ctx context.Context, intentID, status string) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("payment_intent_id = ?", intentID).
		Update("status", status)
	return res.RowsAffected, res.Error
}
