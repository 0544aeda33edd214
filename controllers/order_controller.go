package controllers

import (
	"net/http"

	"shop-service/models"
	"shop-service/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// OrderController handles checkout and order administration.
type OrderController struct {
	orderService services.OrderService
	logger       *zap.Logger
}

func NewOrderController(svc services.OrderService, logger *zap.Logger) *OrderController {
	return &OrderController{orderService: svc, logger: logger}
}

// PlaceOrder handles POST /to_order. An empty cart yields an order with no
// client secret.
func (oc *OrderController) PlaceOrder(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req models.PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := oc.orderService.PlaceOrder(c.Request.Context(), p, *req.Latitude, *req.Longitude)
	if err != nil {
		respondError(c, oc.logger, err)
		return
	}

	c.JSON(http.StatusCreated, models.CheckoutResponse{
		OrderID:      res.Order.ID,
		TotalPrice:   res.Order.TotalPrice,
		ClientSecret: res.ClientSecret,
	})
}

// ChangeStatus handles POST /change_order_status
func (oc *OrderController) ChangeStatus(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req models.ChangeOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	order, err := oc.orderService.ChangeStatus(c.Request.Context(), p, req.OrderID, req.Status, req.Force)
	if err != nil {
		respondError(c, oc.logger, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// GetOrder handles GET /orders/:id
func (oc *OrderController) GetOrder(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	order, err := oc.orderService.GetOrder(c.Request.Context(), p, id)
	if err != nil {
		respondError(c, oc.logger, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// ListOrders handles GET /orders
func (oc *OrderController) ListOrders(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	page, limit := parsePaginationParams(c)
	orders, meta, err := oc.orderService.ListOrders(c.Request.Context(), p, page, limit)
	if err != nil {
		respondError(c, oc.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "meta": meta})
}
