package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Cart holds a user's soft reservations. There is at most one cart per user.
type Cart struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	Lines     []CartLine `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE" json:"lines"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// CartLine is stock already taken from Product.Stock and parked in a cart.
type CartLine struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CartID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_cart_product" json:"cart_id"`
	ProductID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_cart_product" json:"product_id"`
	Product   Product   `gorm:"foreignKey:ProductID" json:"product"`
	Quantity  int       `gorm:"not null;check:quantity >= 1" json:"quantity"`
}

// Subtotal is quantity times the product's current effective price.
func (l CartLine) Subtotal() decimal.Decimal {
	return l.Product.EffectivePrice().Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// CartTotal sums the live subtotal of every line. Lines must have their
// Product loaded.
func CartTotal(lines []CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// TotalPrice is computed on every call so price and discount changes show
// up until checkout.
func (c Cart) TotalPrice() decimal.Decimal {
	return CartTotal(c.Lines)
}

// CartView is the response shape for a cart with its computed total.
type CartView struct {
	Cart
	TotalPrice decimal.Decimal `json:"total_price"`
}

// NewCartView attaches the live total to c.
func NewCartView(c *Cart) CartView {
	return CartView{Cart: *c, TotalPrice: c.TotalPrice()}
}
