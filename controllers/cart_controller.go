package controllers

import (
	"net/http"

	"shop-service/models"
	"shop-service/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CartController handles HTTP requests for carts.
type CartController struct {
	cartService services.CartService
	logger      *zap.Logger
}

func NewCartController(svc services.CartService, logger *zap.Logger) *CartController {
	return &CartController{cartService: svc, logger: logger}
}

// AddToCart handles POST /to_card
func (cc *CartController) AddToCart(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req models.AddToCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	cart, err := cc.cartService.AddToCart(c.Request.Context(), p, req.ProductID, req.Quantity)
	if err != nil {
		respondError(c, cc.logger, err)
		return
	}
	c.JSON(http.StatusOK, models.NewCartView(cart))
}

// RemoveFromCart handles POST /remove_card
func (cc *CartController) RemoveFromCart(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req models.RemoveFromCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	cart, err := cc.cartService.RemoveFromCart(c.Request.Context(), p, req.ProductID, req.Quantity)
	if err != nil {
		respondError(c, cc.logger, err)
		return
	}
	c.JSON(http.StatusOK, models.NewCartView(cart))
}

// GetMyCart handles GET /card
func (cc *CartController) GetMyCart(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	cart, err := cc.cartService.GetMyCart(c.Request.Context(), p)
	if err != nil {
		respondError(c, cc.logger, err)
		return
	}
	c.JSON(http.StatusOK, models.NewCartView(cart))
}

// GetCart handles GET /cards/:id
func (cc *CartController) GetCart(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	cart, err := cc.cartService.GetCart(c.Request.Context(), p, id)
	if err != nil {
		respondError(c, cc.logger, err)
		return
	}
	c.JSON(http.StatusOK, models.NewCartView(cart))
}

// ListCarts handles GET /cards
func (cc *CartController) ListCarts(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	page, limit := parsePaginationParams(c)
	carts, meta, err := cc.cartService.ListCarts(c.Request.Context(), p, page, limit)
	if err != nil {
		respondError(c, cc.logger, err)
		return
	}

	views := make([]models.CartView, 0, len(carts))
	for i := range carts {
		views = append(views, models.NewCartView(&carts[i]))
	}
	c.JSON(http.StatusOK, gin.H{"carts": views, "meta": meta})
}
