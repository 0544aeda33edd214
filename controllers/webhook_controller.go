package controllers

import (
	"errors"
	"io"
	"net/http"

	"shop-service/apperrors"
	"shop-service/logger"
	"shop-service/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxWebhookBody = 65536

type WebhookController struct {
	webhooks services.WebhookService
	logger   *zap.Logger
}

func NewWebhookController(svc services.WebhookService, logger *zap.Logger) *WebhookController {
	return &WebhookController{webhooks: svc, logger: logger}
}

// HandleStripe handles POST /stripe-webhook. Only signature, configuration
// and unknown-order failures surface as errors; anything else is logged and
// acknowledged so the gateway does not keep retrying.
func (wc *WebhookController) HandleStripe(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Error reading request body"})
		return
	}

	outcome, err := wc.webhooks.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": outcome.String()})
	case errors.Is(err, apperrors.ErrWebhookSignature),
		errors.Is(err, apperrors.ErrWebhookSecretMissing),
		errors.Is(err, apperrors.ErrOrderNotFound):
		respondError(c, wc.logger, err)
	default:
		logger.FromContext(c, wc.logger).Error("webhook apply failed",
			zap.Stringer("outcome", outcome),
			zap.Error(err),
		)
		c.JSON(http.StatusOK, gin.H{"status": "received"})
	}
}
