package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AddToCartRequest struct {
	ProductID uuid.UUID `json:"product_id" binding:"required"`
	Quantity  int       `json:"quantity" binding:"required,gt=0"`
}

// RemoveFromCartRequest leaves Quantity nil to drop the whole line.
type RemoveFromCartRequest struct {
	ProductID uuid.UUID `json:"product_id" binding:"required"`
	Quantity  *int      `json:"quantity" binding:"omitempty,gt=0"`
}

type PlaceOrderRequest struct {
	Latitude  *float64 `json:"latitude" binding:"required"`
	Longitude *float64 `json:"longitude" binding:"required"`
}

type ChangeOrderStatusRequest struct {
	OrderID uuid.UUID `json:"order_id" binding:"required"`
	Status  string    `json:"status" binding:"required,order_status"`
	Force   bool      `json:"force"`
}

type CheckoutResponse struct {
	OrderID      uuid.UUID       `json:"order_id"`
	TotalPrice   decimal.Decimal `json:"total_price"`
	ClientSecret string          `json:"clientSecret"`
}

type PageMeta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// OrderEvent is published to the notifications topic.
type OrderEvent struct {
	Type            string          `json:"type"`
	OrderID         string          `json:"order_id"`
	UserID          string          `json:"user_id"`
	Status          OrderStatus     `json:"status"`
	TotalPrice      decimal.Decimal `json:"total_price"`
	PaymentIntentID string          `json:"payment_intent_id,omitempty"`
}

const (
	EventOrderPlaced         = "order.placed"
	EventOrderPaid           = "order.paid"
	EventOrderStatusChanged  = "order.status_changed"
	EventOrderRefundRequired = "order.refund_required"
)
