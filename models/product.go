package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Product is the catalog row whose Stock column is the single source of
// truth for available quantity. Catalog CRUD lives elsewhere; this service
// only reads prices and moves stock.
type Product struct {
	ID              uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name            string          `gorm:"type:varchar(255);not null" json:"name"`
	Price           decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	Stock           int             `gorm:"not null;default:0;check:stock >= 0" json:"stock"`
	DiscountPercent int             `gorm:"not null;default:0;check:discount_percent BETWEEN 0 AND 100" json:"discount_percent"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// EffectivePrice returns price × (100 − discount) / 100 without rounding.
func (p Product) EffectivePrice() decimal.Decimal {
	return p.Price.Mul(decimal.NewFromInt(int64(100 - p.DiscountPercent))).Div(hundred)
}
