package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	TransactionStatusRequiresPaymentMethod = "requires_payment_method"
	TransactionStatusSuccess               = "success"
	TransactionStatusFailed                = "failed"
	TransactionStatusIgnored               = "ignored"
)

// Transaction records one payment intent created for an order.
type Transaction struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OrderID         uuid.UUID `gorm:"type:uuid;not null;index" json:"order_id"`
	UserID          uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	PaymentIntentID string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"payment_intent_id"`
	Amount          int64     `gorm:"not null" json:"amount"` // minor units
	Currency        string    `gorm:"type:varchar(10);not null" json:"currency"`
	Status          string    `gorm:"type:varchar(40);not null" json:"status"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
