package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/paymentintent"
	"github.com/stripe/stripe-go/v80/webhook"

	"shop-service/apperrors"
)

type PaymentIntentRequest struct {
	Amount         int64 // minor units
	Currency       string
	Metadata       map[string]string
	IdempotencyKey string
}

type PaymentIntent struct {
	ID           string
	ClientSecret string
	Status       string
}

// WebhookEvent is a verified gateway callback reduced to what the
// reconciler needs.
type WebhookEvent struct {
	ID              string
	Type            string
	PaymentIntentID string
}

// PaymentGateway is the outbound payment provider.
type PaymentGateway interface {
	CreatePaymentIntent(ctx context.Context, req PaymentIntentRequest) (*PaymentIntent, error)
	// VerifyWebhook checks the signature header against the endpoint secret.
	VerifyWebhook(payload []byte, sigHeader string) (*WebhookEvent, error)
}

// StripeGateway implements PaymentGateway on the Stripe API.
type StripeGateway struct {
	webhookKey string
}

func NewStripeGateway(secretKey, webhookKey string) *StripeGateway {
	stripe.Key = secretKey
	return &StripeGateway{webhookKey: webhookKey}
}

func (g *StripeGateway) CreatePaymentIntent(ctx context.Context, req PaymentIntentRequest) (*PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(req.Currency),
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}
	return &PaymentIntent{ID: pi.ID, ClientSecret: pi.ClientSecret, Status: string(pi.Status)}, nil
}

func (g *StripeGateway) VerifyWebhook(payload []byte, sigHeader string) (*WebhookEvent, error) {
	if g.webhookKey == "" {
		return nil, apperrors.ErrWebhookSecretMissing
	}

	event, err := webhook.ConstructEvent(payload, sigHeader, g.webhookKey)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrWebhookSignature, err)
	}

	ev := &WebhookEvent{ID: event.ID, Type: string(event.Type)}
	if event.Data != nil {
		ev.PaymentIntentID = intentIDFromObject(event.Data.Raw)
	}
	return ev, nil
}

// intentIDFromObject reads the payment intent id from an event object. For
// payment_intent objects it is the object id; charges and refunds carry it
// in their payment_intent field.
func intentIDFromObject(raw json.RawMessage) string {
	var obj struct {
		ID            string `json:"id"`
		Object        string `json:"object"`
		PaymentIntent string `json:"payment_intent"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	if obj.Object == "payment_intent" {
		return obj.ID
	}
	return obj.PaymentIntent
}
