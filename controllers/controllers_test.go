package controllers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"shop-service/apperrors"
	"shop-service/controllers"
	"shop-service/middleware"
	"shop-service/models"
	"shop-service/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// ---- mocks ----

type mockCartSvc struct {
	cart     *models.Cart
	carts    []models.Cart
	err      error
	gotQty   *int
	gotPage  int
	gotLimit int
}

func (m *mockCartSvc) AddToCart(_ context.Context, _ models.Principal, _ uuid.UUID, qty int) (*models.Cart, error) {
	m.gotQty = &qty
	return m.cart, m.err
}

func (m *mockCartSvc) RemoveFromCart(_ context.Context, _ models.Principal, _ uuid.UUID, qty *int) (*models.Cart, error) {
	m.gotQty = qty
	return m.cart, m.err
}

func (m *mockCartSvc) GetMyCart(context.Context, models.Principal) (*models.Cart, error) {
	return m.cart, m.err
}

func (m *mockCartSvc) GetCart(context.Context, models.Principal, uuid.UUID) (*models.Cart, error) {
	return m.cart, m.err
}

func (m *mockCartSvc) ListCarts(_ context.Context, _ models.Principal, page, limit int) ([]models.Cart, models.PageMeta, error) {
	m.gotPage, m.gotLimit = page, limit
	return m.carts, models.PageMeta{Page: page, Limit: limit, Total: int64(len(m.carts)), TotalPages: 1}, m.err
}

type mockOrderSvc struct {
	result    *services.CheckoutResult
	order     *models.Order
	orders    []models.Order
	err       error
	gotStatus string
	gotForce  bool
	gotLat    float64
}

func (m *mockOrderSvc) PlaceOrder(_ context.Context, _ models.Principal, lat, _ float64) (*services.CheckoutResult, error) {
	m.gotLat = lat
	return m.result, m.err
}

func (m *mockOrderSvc) ChangeStatus(_ context.Context, _ models.Principal, _ uuid.UUID, status string, force bool) (*models.Order, error) {
	m.gotStatus, m.gotForce = status, force
	return m.order, m.err
}

func (m *mockOrderSvc) GetOrder(context.Context, models.Principal, uuid.UUID) (*models.Order, error) {
	return m.order, m.err
}

func (m *mockOrderSvc) ListOrders(_ context.Context, _ models.Principal, page, limit int) ([]models.Order, models.PageMeta, error) {
	return m.orders, models.PageMeta{Page: page, Limit: limit}, m.err
}

type mockWebhookSvc struct {
	outcome services.PaymentOutcome
	err     error
	payload []byte
	sig     string
}

func (m *mockWebhookSvc) HandleWebhook(_ context.Context, payload []byte, sig string) (services.PaymentOutcome, error) {
	m.payload, m.sig = payload, sig
	return m.outcome, m.err
}

// ---- helpers ----

var testUser = models.Principal{UserID: uuid.MustParse("6f1f5c9e-2c55-4d6c-9c43-6a1c7d6e0a11")}

func withPrincipal(p *models.Principal) gin.HandlerFunc {
	return func(c *gin.Context) {
		if p != nil {
			c.Set(middleware.PrincipalContextKey, *p)
		}
		c.Next()
	}
}

func setupRouter(t *testing.T, p *models.Principal, cs services.CartService, osvc services.OrderService, ws services.WebhookService) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	require.NoError(t, controllers.RegisterValidators())

	log := zap.NewNop()
	cc := controllers.NewCartController(cs, log)
	oc := controllers.NewOrderController(osvc, log)
	wc := controllers.NewWebhookController(ws, log)

	r := gin.New()
	r.POST("/stripe-webhook", wc.HandleStripe)

	api := r.Group("/", withPrincipal(p))
	api.POST("/to_card", cc.AddToCart)
	api.POST("/remove_card", cc.RemoveFromCart)
	api.GET("/card", cc.GetMyCart)
	api.GET("/cards", cc.ListCarts)
	api.GET("/cards/:id", cc.GetCart)
	api.POST("/to_order", oc.PlaceOrder)
	api.POST("/change_order_status", oc.ChangeStatus)
	api.GET("/orders", oc.ListOrders)
	api.GET("/orders/:id", oc.GetOrder)
	return r
}

func doJSON(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			_ = json.NewEncoder(&buf).Encode(body)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func sampleCart() *models.Cart {
	return &models.Cart{
		ID:     uuid.New(),
		UserID: testUser.UserID,
		Lines: []models.CartLine{
			{Quantity: 2, Product: models.Product{Price: decimal.NewFromInt(100)}},
			{Quantity: 1, Product: models.Product{Price: decimal.NewFromInt(50), DiscountPercent: 40}},
		},
	}
}

// ---- cart ----

func TestAddToCart_Success(t *testing.T) {
	cs := &mockCartSvc{cart: sampleCart()}
	r := setupRouter(t, &testUser, cs, &mockOrderSvc{}, &mockWebhookSvc{})

	w := doJSON(r, http.MethodPost, "/to_card", gin.H{"product_id": uuid.NewString(), "quantity": 2})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "230", decode(t, w)["total_price"])
	require.NotNil(t, cs.gotQty)
	assert.Equal(t, 2, *cs.gotQty)
}

func TestAddToCart_Validation(t *testing.T) {
	r := setupRouter(t, &testUser, &mockCartSvc{}, &mockOrderSvc{}, &mockWebhookSvc{})

	cases := map[string]interface{}{
		"zero quantity":     gin.H{"product_id": uuid.NewString(), "quantity": 0},
		"negative quantity": gin.H{"product_id": uuid.NewString(), "quantity": -3},
		"missing product":   gin.H{"quantity": 1},
		"bad product id":    gin.H{"product_id": "nope", "quantity": 1},
		"not json":          "not-json",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, doJSON(r, http.MethodPost, "/to_card", body).Code)
		})
	}
}

func TestAddToCart_ServiceErrors(t *testing.T) {
	cases := []struct {
		err  error
		code int
		msg  string
	}{
		{apperrors.ErrInsufficientStock, http.StatusBadRequest, apperrors.ErrInsufficientStock.Message},
		{apperrors.ErrProductNotFound, http.StatusNotFound, apperrors.ErrProductNotFound.Message},
		{errors.New("pq: connection reset"), http.StatusInternalServerError, apperrors.ErrInternalServer.Message},
	}
	for _, tc := range cases {
		r := setupRouter(t, &testUser, &mockCartSvc{err: tc.err}, &mockOrderSvc{}, &mockWebhookSvc{})
		w := doJSON(r, http.MethodPost, "/to_card", gin.H{"product_id": uuid.NewString(), "quantity": 1})

		assert.Equal(t, tc.code, w.Code)
		assert.Equal(t, tc.msg, decode(t, w)["error"])
		assert.NotContains(t, w.Body.String(), "pq:")
	}
}

func TestAddToCart_NoPrincipal(t *testing.T) {
	r := setupRouter(t, nil, &mockCartSvc{}, &mockOrderSvc{}, &mockWebhookSvc{})
	w := doJSON(r, http.MethodPost, "/to_card", gin.H{"product_id": uuid.NewString(), "quantity": 1})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRemoveFromCart_QuantityOptional(t *testing.T) {
	cs := &mockCartSvc{cart: sampleCart()}
	r := setupRouter(t, &testUser, cs, &mockOrderSvc{}, &mockWebhookSvc{})

	w := doJSON(r, http.MethodPost, "/remove_card", gin.H{"product_id": uuid.NewString()})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, cs.gotQty)

	w = doJSON(r, http.MethodPost, "/remove_card", gin.H{"product_id": uuid.NewString(), "quantity": 1})
	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, cs.gotQty)
	assert.Equal(t, 1, *cs.gotQty)

	w = doJSON(r, http.MethodPost, "/remove_card", gin.H{"product_id": uuid.NewString(), "quantity": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRemoveFromCart_NotInCart(t *testing.T) {
	r := setupRouter(t, &testUser, &mockCartSvc{err: apperrors.ErrProductNotInCart}, &mockOrderSvc{}, &mockWebhookSvc{})
	w := doJSON(r, http.MethodPost, "/remove_card", gin.H{"product_id": uuid.NewString()})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetCart_Routes(t *testing.T) {
	cs := &mockCartSvc{cart: sampleCart(), carts: []models.Cart{*sampleCart()}}
	r := setupRouter(t, &testUser, cs, &mockOrderSvc{}, &mockWebhookSvc{})

	assert.Equal(t, http.StatusOK, doJSON(r, http.MethodGet, "/card", nil).Code)
	assert.Equal(t, http.StatusOK, doJSON(r, http.MethodGet, "/cards/"+uuid.NewString(), nil).Code)
	assert.Equal(t, http.StatusBadRequest, doJSON(r, http.MethodGet, "/cards/not-a-uuid", nil).Code)

	w := doJSON(r, http.MethodGet, "/cards?page=2&limit=5", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, cs.gotPage)
	assert.Equal(t, 5, cs.gotLimit)
	body := decode(t, w)
	assert.Len(t, body["carts"], 1)
	assert.Contains(t, body, "meta")
}

func TestListCarts_Forbidden(t *testing.T) {
	r := setupRouter(t, &testUser, &mockCartSvc{err: apperrors.ErrForbidden}, &mockOrderSvc{}, &mockWebhookSvc{})
	assert.Equal(t, http.StatusForbidden, doJSON(r, http.MethodGet, "/cards", nil).Code)
}

// ---- orders ----

func TestPlaceOrder_Success(t *testing.T) {
	orderID := uuid.New()
	osvc := &mockOrderSvc{result: &services.CheckoutResult{
		Order:        &models.Order{ID: orderID, TotalPrice: decimal.NewFromInt(230)},
		ClientSecret: "pi_1_secret_abc",
	}}
	r := setupRouter(t, &testUser, &mockCartSvc{}, osvc, &mockWebhookSvc{})

	w := doJSON(r, http.MethodPost, "/to_order", gin.H{"latitude": 0, "longitude": 30.5})

	assert.Equal(t, http.StatusCreated, w.Code)
	body := decode(t, w)
	assert.Equal(t, orderID.String(), body["order_id"])
	assert.Equal(t, "pi_1_secret_abc", body["clientSecret"])
	assert.Equal(t, "230", body["total_price"])
	assert.Equal(t, 0.0, osvc.gotLat)
}

func TestPlaceOrder_Errors(t *testing.T) {
	r := setupRouter(t, &testUser, &mockCartSvc{}, &mockOrderSvc{}, &mockWebhookSvc{})
	assert.Equal(t, http.StatusBadRequest, doJSON(r, http.MethodPost, "/to_order", gin.H{"latitude": 10}).Code)

	cases := []struct {
		err  error
		code int
	}{
		{apperrors.ErrInvalidCoordinates, http.StatusBadRequest},
		{apperrors.ErrCartNotFound, http.StatusNotFound},
		{apperrors.Wrap(apperrors.ErrPaymentGateway, errors.New("card_declined")), http.StatusBadGateway},
	}
	for _, tc := range cases {
		r := setupRouter(t, &testUser, &mockCartSvc{}, &mockOrderSvc{err: tc.err}, &mockWebhookSvc{})
		w := doJSON(r, http.MethodPost, "/to_order", gin.H{"latitude": 91, "longitude": 0})
		assert.Equal(t, tc.code, w.Code)
		assert.NotContains(t, w.Body.String(), "card_declined")
	}
}

func TestChangeStatus(t *testing.T) {
	osvc := &mockOrderSvc{order: &models.Order{ID: uuid.New(), Status: models.OrderStatusShipped}}
	r := setupRouter(t, &testUser, &mockCartSvc{}, osvc, &mockWebhookSvc{})

	w := doJSON(r, http.MethodPost, "/change_order_status", gin.H{"order_id": uuid.NewString(), "status": "SHIPPED", "force": true})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "SHIPPED", osvc.gotStatus)
	assert.True(t, osvc.gotForce)
	assert.Equal(t, "shipped", decode(t, w)["status"])

	w = doJSON(r, http.MethodPost, "/change_order_status", gin.H{"order_id": uuid.NewString(), "status": "teleported"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChangeStatus_ServiceErrors(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{apperrors.ErrIllegalTransition, http.StatusConflict},
		{apperrors.ErrForbidden, http.StatusForbidden},
		{apperrors.ErrOrderNotFound, http.StatusNotFound},
	}
	for _, tc := range cases {
		r := setupRouter(t, &testUser, &mockCartSvc{}, &mockOrderSvc{err: tc.err}, &mockWebhookSvc{})
		w := doJSON(r, http.MethodPost, "/change_order_status", gin.H{"order_id": uuid.NewString(), "status": "delivered"})
		assert.Equal(t, tc.code, w.Code)
	}
}

func TestOrderReads(t *testing.T) {
	osvc := &mockOrderSvc{order: &models.Order{ID: uuid.New()}, orders: []models.Order{{ID: uuid.New()}}}
	r := setupRouter(t, &testUser, &mockCartSvc{}, osvc, &mockWebhookSvc{})

	assert.Equal(t, http.StatusOK, doJSON(r, http.MethodGet, "/orders/"+uuid.NewString(), nil).Code)
	assert.Equal(t, http.StatusBadRequest, doJSON(r, http.MethodGet, "/orders/xyz", nil).Code)

	w := doJSON(r, http.MethodGet, "/orders", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["orders"], 1)
}

// ---- webhook ----

func TestWebhook_Outcomes(t *testing.T) {
	cases := []struct {
		name    string
		outcome services.PaymentOutcome
		err     error
		code    int
		status  string
	}{
		{"succeeded", services.OutcomeSucceeded, nil, http.StatusOK, "success"},
		{"failed", services.OutcomeFailed, nil, http.StatusOK, "failed"},
		{"ignored", services.OutcomeIgnored, nil, http.StatusOK, "ignored"},
		{"apply error is acknowledged", services.OutcomeSucceeded, errors.New("deadlock"), http.StatusOK, "received"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ws := &mockWebhookSvc{outcome: tc.outcome, err: tc.err}
			r := setupRouter(t, nil, &mockCartSvc{}, &mockOrderSvc{}, ws)

			req := httptest.NewRequest(http.MethodPost, "/stripe-webhook", bytes.NewBufferString(`{"id":"evt_1"}`))
			req.Header.Set("Stripe-Signature", "t=1,v1=abc")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tc.code, w.Code)
			assert.Equal(t, tc.status, decode(t, w)["status"])
			assert.Equal(t, `{"id":"evt_1"}`, string(ws.payload))
			assert.Equal(t, "t=1,v1=abc", ws.sig)
		})
	}
}

func TestWebhook_Errors(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{apperrors.Wrap(apperrors.ErrWebhookSignature, errors.New("no valid signature")), http.StatusBadRequest},
		{apperrors.ErrWebhookSecretMissing, http.StatusInternalServerError},
		{apperrors.ErrOrderNotFound, http.StatusNotFound},
	}
	for _, tc := range cases {
		r := setupRouter(t, nil, &mockCartSvc{}, &mockOrderSvc{}, &mockWebhookSvc{err: tc.err})
		w := doJSON(r, http.MethodPost, "/stripe-webhook", `{}`)
		assert.Equal(t, tc.code, w.Code)
		assert.NotContains(t, w.Body.String(), "no valid signature")
	}
}
