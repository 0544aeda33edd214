package routes

import (
	"net/http"

	"shop-service/controllers"
	"shop-service/middleware"

	"github.com/gin-gonic/gin"
)

type Controllers struct {
	Cart    *controllers.CartController
	Order   *controllers.OrderController
	Webhook *controllers.WebhookController
}

// RegisterRoutes mounts the public, client and staff routes under /api/v1.
// limiter throttles client traffic per IP; the webhook is left out because
// the gateway delivers from a small set of shared addresses. A nil limiter
// disables throttling.
func RegisterRoutes(r *gin.Engine, ctrl Controllers, jwtSecret string, limiter *middleware.RateLimiter) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "shop-service"})
	})

	v1 := r.Group("/api/v1")

	// Authenticated by the Stripe-Signature header, not a JWT.
	v1.POST("/stripe-webhook", ctrl.Webhook.HandleStripe)

	authed := v1.Group("")
	if limiter != nil {
		authed.Use(middleware.RateLimitMiddleware(limiter))
	}
	authed.Use(middleware.JWTAuth(jwtSecret))
	{
		authed.POST("/to_card", ctrl.Cart.AddToCart)
		authed.POST("/remove_card", ctrl.Cart.RemoveFromCart)
		authed.GET("/card", ctrl.Cart.GetMyCart)
		authed.GET("/cards/:id", ctrl.Cart.GetCart)

		authed.POST("/to_order", ctrl.Order.PlaceOrder)
		authed.GET("/orders/:id", ctrl.Order.GetOrder)
	}

	staff := authed.Group("")
	staff.Use(middleware.RequireStaff())
	{
		staff.GET("/cards", ctrl.Cart.ListCarts)
		staff.GET("/orders", ctrl.Order.ListOrders)
		staff.POST("/change_order_status", ctrl.Order.ChangeStatus)
	}
}
