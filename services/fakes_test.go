package services_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"shop-service/models"
	"shop-service/repository"
	"shop-service/services"
)

// ---- in-memory store ----

type memData struct {
	products   map[uuid.UUID]models.Product
	carts      map[uuid.UUID]models.Cart
	cartLines  map[uuid.UUID]models.CartLine
	orders     map[uuid.UUID]models.Order
	orderLines map[uuid.UUID]models.OrderLine
	txns       map[uuid.UUID]models.Transaction
}

func newMemData() *memData {
	return &memData{
		products:   map[uuid.UUID]models.Product{},
		carts:      map[uuid.UUID]models.Cart{},
		cartLines:  map[uuid.UUID]models.CartLine{},
		orders:     map[uuid.UUID]models.Order{},
		orderLines: map[uuid.UUID]models.OrderLine{},
		txns:       map[uuid.UUID]models.Transaction{},
	}
}

func (d *memData) clone() *memData {
	c := newMemData()
	for k, v := range d.products {
		c.products[k] = v
	}
	for k, v := range d.carts {
		c.carts[k] = v
	}
	for k, v := range d.cartLines {
		c.cartLines[k] = v
	}
	for k, v := range d.orders {
		c.orders[k] = v
	}
	for k, v := range d.orderLines {
		c.orderLines[k] = v
	}
	for k, v := range d.txns {
		c.txns[k] = v
	}
	return c
}

// memStore serializes every transaction on one mutex, which is at least as
// strict as the row locks the Postgres store takes. A failed transaction
// restores the snapshot taken when it began.
type memStore struct {
	mu   sync.Mutex
	data *memData
	errs map[string]error
}

func newMemStore() *memStore {
	return &memStore{data: newMemData(), errs: map[string]error{}}
}

type memView struct {
	s  *memStore
	tx bool
}

func (s *memStore) view() memView { return memView{s: s} }

func (s *memStore) Products() repository.ProductRepository         { return memProducts(s.view()) }
func (s *memStore) Carts() repository.CartRepository               { return memCarts(s.view()) }
func (s *memStore) Orders() repository.OrderRepository             { return memOrders(s.view()) }
func (s *memStore) Transactions() repository.TransactionRepository { return memTxns(s.view()) }

func (s *memStore) WithTx(ctx context.Context, fn func(tx repository.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	if err := fn(&memTxStore{s: s}); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

func (s *memStore) failWith(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[op] = err
}

type memTxStore struct{ s *memStore }

func (t *memTxStore) view() memView { return memView{s: t.s, tx: true} }

func (t *memTxStore) Products() repository.ProductRepository         { return memProducts(t.view()) }
func (t *memTxStore) Carts() repository.CartRepository               { return memCarts(t.view()) }
func (t *memTxStore) Orders() repository.OrderRepository             { return memOrders(t.view()) }
func (t *memTxStore) Transactions() repository.TransactionRepository { return memTxns(t.view()) }
func (t *memTxStore) WithTx(_ context.Context, fn func(tx repository.Store) error) error {
	return fn(t)
}

// enter takes the store mutex for calls made outside a transaction and
// returns the injected error for op, if any.
func (v memView) enter(op string) (func(), error) {
	unlock := func() {}
	if !v.tx {
		v.s.mu.Lock()
		unlock = v.s.mu.Unlock
	}
	return unlock, v.s.errs[op]
}

func (v memView) d() *memData { return v.s.data }

// ---- products ----

type memProducts memView

func (r memProducts) find(op string, id uuid.UUID) (*models.Product, error) {
	unlock, err := memView(r).enter(op)
	defer unlock()
	if err != nil {
		return nil, err
	}
	p, ok := memView(r).d().products[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r memProducts) FindByID(_ context.Context, id uuid.UUID) (*models.Product, error) {
	return r.find("Products.FindByID", id)
}

func (r memProducts) FindByIDForUpdate(_ context.Context, id uuid.UUID) (*models.Product, error) {
	return r.find("Products.FindByIDForUpdate", id)
}

func (r memProducts) UpdateStock(_ context.Context, id uuid.UUID, stock int) error {
	unlock, err := memView(r).enter("Products.UpdateStock")
	defer unlock()
	if err != nil {
		return err
	}
	d := memView(r).d()
	p, ok := d.products[id]
	if !ok {
		return repository.ErrNotFound
	}
	if stock < 0 {
		return errors.New("check constraint violated: stock >= 0")
	}
	p.Stock = stock
	d.products[id] = p
	return nil
}

// ---- carts ----

type memCarts memView

func (r memCarts) withLines(c models.Cart) *models.Cart {
	d := memView(r).d()
	c.Lines = nil
	for _, l := range d.cartLines {
		if l.CartID == c.ID {
			l.Product = d.products[l.ProductID]
			c.Lines = append(c.Lines, l)
		}
	}
	sort.Slice(c.Lines, func(i, j int) bool { return c.Lines[i].ProductID.String() < c.Lines[j].ProductID.String() })
	return &c
}

func (r memCarts) FindByUserID(_ context.Context, userID uuid.UUID) (*models.Cart, error) {
	unlock, err := memView(r).enter("Carts.FindByUserID")
	defer unlock()
	if err != nil {
		return nil, err
	}
	for _, c := range memView(r).d().carts {
		if c.UserID == userID {
			return r.withLines(c), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r memCarts) FindByID(_ context.Context, id uuid.UUID) (*models.Cart, error) {
	unlock, err := memView(r).enter("Carts.FindByID")
	defer unlock()
	if err != nil {
		return nil, err
	}
	c, ok := memView(r).d().carts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.withLines(c), nil
}

func (r memCarts) FindAll(_ context.Context, page, limit int) ([]models.Cart, int64, error) {
	unlock, err := memView(r).enter("Carts.FindAll")
	defer unlock()
	if err != nil {
		return nil, 0, err
	}
	var all []models.Cart
	for _, c := range memView(r).d().carts {
		all = append(all, *r.withLines(c))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID.String() < all[j].ID.String() })
	return paginate(all, page, limit), int64(len(all)), nil
}

func (r memCarts) FindOrCreateByUserID(_ context.Context, userID uuid.UUID) (*models.Cart, error) {
	unlock, err := memView(r).enter("Carts.FindOrCreateByUserID")
	defer unlock()
	if err != nil {
		return nil, err
	}
	d := memView(r).d()
	for _, c := range d.carts {
		if c.UserID == userID {
			return &c, nil
		}
	}
	c := models.Cart{ID: uuid.New(), UserID: userID}
	d.carts[c.ID] = c
	return &c, nil
}

func (r memCarts) FindLineForUpdate(_ context.Context, cartID, productID uuid.UUID) (*models.CartLine, error) {
	unlock, err := memView(r).enter("Carts.FindLineForUpdate")
	defer unlock()
	if err != nil {
		return nil, err
	}
	for _, l := range memView(r).d().cartLines {
		if l.CartID == cartID && l.ProductID == productID {
			return &l, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r memCarts) CreateLine(_ context.Context, line *models.CartLine) error {
	unlock, err := memView(r).enter("Carts.CreateLine")
	defer unlock()
	if err != nil {
		return err
	}
	d := memView(r).d()
	for _, l := range d.cartLines {
		if l.CartID == line.CartID && l.ProductID == line.ProductID {
			return errors.New("duplicate key value violates unique constraint idx_cart_product")
		}
	}
	if line.ID == uuid.Nil {
		line.ID = uuid.New()
	}
	stored := *line
	stored.Product = models.Product{}
	d.cartLines[line.ID] = stored
	return nil
}

func (r memCarts) UpdateLineQuantity(_ context.Context, lineID uuid.UUID, quantity int) error {
	unlock, err := memView(r).enter("Carts.UpdateLineQuantity")
	defer unlock()
	if err != nil {
		return err
	}
	d := memView(r).d()
	l, ok := d.cartLines[lineID]
	if !ok {
		return nil
	}
	l.Quantity = quantity
	d.cartLines[lineID] = l
	return nil
}

func (r memCarts) DeleteLine(_ context.Context, lineID uuid.UUID) error {
	unlock, err := memView(r).enter("Carts.DeleteLine")
	defer unlock()
	if err != nil {
		return err
	}
	delete(memView(r).d().cartLines, lineID)
	return nil
}

func (r memCarts) ClearLines(_ context.Context, cartID uuid.UUID) error {
	unlock, err := memView(r).enter("Carts.ClearLines")
	defer unlock()
	if err != nil {
		return err
	}
	d := memView(r).d()
	for id, l := range d.cartLines {
		if l.CartID == cartID {
			delete(d.cartLines, id)
		}
	}
	return nil
}

// ---- orders ----

type memOrders memView

func (r memOrders) assemble(o models.Order) *models.Order {
	d := memView(r).d()
	o.Lines = nil
	o.Transactions = nil
	for _, l := range d.orderLines {
		if l.OrderID == o.ID {
			o.Lines = append(o.Lines, l)
		}
	}
	for _, t := range d.txns {
		if t.OrderID == o.ID {
			o.Transactions = append(o.Transactions, t)
		}
	}
	sort.Slice(o.Lines, func(i, j int) bool { return o.Lines[i].ProductID.String() < o.Lines[j].ProductID.String() })
	return &o
}

func (r memOrders) Create(_ context.Context, order *models.Order) error {
	unlock, err := memView(r).enter("Orders.Create")
	defer unlock()
	if err != nil {
		return err
	}
	d := memView(r).d()
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	for i := range order.Lines {
		if order.Lines[i].ID == uuid.Nil {
			order.Lines[i].ID = uuid.New()
		}
		order.Lines[i].OrderID = order.ID
		d.orderLines[order.Lines[i].ID] = order.Lines[i]
	}
	stored := *order
	stored.Lines, stored.Transactions = nil, nil
	d.orders[order.ID] = stored
	return nil
}

func (r memOrders) FindByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	return r.find("Orders.FindByID", id)
}

func (r memOrders) FindByIDForUpdate(_ context.Context, id uuid.UUID) (*models.Order, error) {
	return r.find("Orders.FindByIDForUpdate", id)
}

func (r memOrders) find(op string, id uuid.UUID) (*models.Order, error) {
	unlock, err := memView(r).enter(op)
	defer unlock()
	if err != nil {
		return nil, err
	}
	o, ok := memView(r).d().orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.assemble(o), nil
}

func (r memOrders) FindByPaymentIntentID(_ context.Context, intentID string) (*models.Order, error) {
	unlock, err := memView(r).enter("Orders.FindByPaymentIntentID")
	defer unlock()
	if err != nil {
		return nil, err
	}
	for _, o := range memView(r).d().orders {
		if o.PaymentIntentID != nil && *o.PaymentIntentID == intentID {
			return r.assemble(o), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r memOrders) FindAll(_ context.Context, page, limit int) ([]models.Order, int64, error) {
	unlock, err := memView(r).enter("Orders.FindAll")
	defer unlock()
	if err != nil {
		return nil, 0, err
	}
	var all []models.Order
	for _, o := range memView(r).d().orders {
		all = append(all, *r.assemble(o))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID.String() < all[j].ID.String() })
	return paginate(all, page, limit), int64(len(all)), nil
}

func (r memOrders) Update(_ context.Context, order *models.Order) error {
	unlock, err := memView(r).enter("Orders.Update")
	defer unlock()
	if err != nil {
		return err
	}
	d := memView(r).d()
	stored, ok := d.orders[order.ID]
	if !ok {
		return repository.ErrNotFound
	}
	stored.Status = order.Status
	stored.PaymentIntentID = order.PaymentIntentID
	stored.Paid = order.Paid
	stored.PaidAt = order.PaidAt
	stored.CanceledAt = order.CanceledAt
	d.orders[order.ID] = stored
	return nil
}

func (r memOrders) Delete(_ context.Context, id uuid.UUID) error {
	unlock, err := memView(r).enter("Orders.Delete")
	defer unlock()
	if err != nil {
		return err
	}
	d := memView(r).d()
	for lid, l := range d.orderLines {
		if l.OrderID == id {
			delete(d.orderLines, lid)
		}
	}
	delete(d.orders, id)
	return nil
}

// ---- transactions ----

type memTxns memView

func (r memTxns) Create(_ context.Context, t *models.Transaction) error {
	unlock, err := memView(r).enter("Transactions.Create")
	defer unlock()
	if err != nil {
		return err
	}
	d := memView(r).d()
	for _, existing := range d.txns {
		if existing.PaymentIntentID == t.PaymentIntentID {
			return errors.New("duplicate key value violates unique constraint on payment_intent_id")
		}
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	d.txns[t.ID] = *t
	return nil
}

func (r memTxns) FindByPaymentIntentID(_ context.Context, intentID string) ([]models.Transaction, error) {
	unlock, err := memView(r).enter("Transactions.FindByPaymentIntentID")
	defer unlock()
	if err != nil {
		return nil, err
	}
	var out []models.Transaction
	for _, t := range memView(r).d().txns {
		if t.PaymentIntentID == intentID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r memTxns) UpdateStatusByIntent(_ context.Context, intentID, status string) (int64, error) {
	unlock, err := memView(r).enter("Transactions.UpdateStatusByIntent")
	defer unlock()
	if err != nil {
		return 0, err
	}
	d := memView(r).d()
	var n int64
	for id, t := range d.txns {
		if t.PaymentIntentID == intentID {
			t.Status = status
			d.txns[id] = t
			n++
		}
	}
	return n, nil
}

func paginate[T any](all []T, page, limit int) []T {
	start := (page - 1) * limit
	if start >= len(all) {
		return nil
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end]
}

// ---- store helpers for assertions ----

func (s *memStore) addProduct(price string, discount, stock int) models.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := models.Product{
		ID:              uuid.New(),
		Name:            "product-" + price,
		Price:           decimal.RequireFromString(price),
		DiscountPercent: discount,
		Stock:           stock,
	}
	s.data.products[p.ID] = p
	return p
}

func (s *memStore) stock(t *testing.T, id uuid.UUID) int {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.products[id].Stock
}

func (s *memStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data.orders)
}

func (s *memStore) orderLineCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data.orderLines)
}

func (s *memStore) transactionsFor(intentID string) []models.Transaction {
	txns, _ := s.Transactions().FindByPaymentIntentID(context.Background(), intentID)
	return txns
}

// reserved sums the quantity of productID held across every cart.
func (s *memStore) reserved(productID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, l := range s.data.cartLines {
		if l.ProductID == productID {
			n += l.Quantity
		}
	}
	return n
}

// ---- fake gateway ----

type fakeGateway struct {
	mu        sync.Mutex
	calls     []services.PaymentIntentRequest
	createErr error
	event     *services.WebhookEvent
	verifyErr error
}

func (g *fakeGateway) CreatePaymentIntent(_ context.Context, req services.PaymentIntentRequest) (*services.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, req)
	if g.createErr != nil {
		return nil, g.createErr
	}
	id := fmt.Sprintf("pi_%d", len(g.calls))
	return &services.PaymentIntent{
		ID:           id,
		ClientSecret: id + "_secret_abc",
		Status:       "requires_payment_method",
	}, nil
}

func (g *fakeGateway) VerifyWebhook(_ []byte, _ string) (*services.WebhookEvent, error) {
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	ev := *g.event
	return &ev, nil
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

// ---- fake notifier ----

type fakeNotifier struct {
	mu     sync.Mutex
	events []models.OrderEvent
}

func (n *fakeNotifier) Dispatch(ev models.OrderEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *fakeNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, ev := range n.events {
		out = append(out, ev.Type)
	}
	return out
}

// ---- fake deduper ----

type fakeDeduper struct {
	seen    map[string]bool
	seenErr error
}

func (d *fakeDeduper) Seen(_ context.Context, id string) (bool, error) {
	if d.seenErr != nil {
		return false, d.seenErr
	}
	return d.seen[id], nil
}

func (d *fakeDeduper) Mark(_ context.Context, id string) error {
	if d.seen == nil {
		d.seen = map[string]bool{}
	}
	d.seen[id] = true
	return nil
}

// ---- fixture ----

type fixture struct {
	store    *memStore
	gateway  *fakeGateway
	notifier *fakeNotifier
	carts    services.CartService
	orders   services.OrderService
	webhooks *services.WebhookReconciler
}

func newFixture() *fixture {
	store := newMemStore()
	gw := &fakeGateway{}
	n := &fakeNotifier{}
	ledger := services.NewInventoryLedger()
	log := zap.NewNop()
	return &fixture{
		store:    store,
		gateway:  gw,
		notifier: n,
		carts:    services.NewCartService(store, ledger, log),
		orders:   services.NewOrderService(store, ledger, gw, n, "usd", log),
		webhooks: services.NewWebhookReconciler(store, gw, nil, n, log),
	}
}

func client() models.Principal { return models.Principal{UserID: uuid.New()} }
func staff() models.Principal  { return models.Principal{UserID: uuid.New(), IsStaff: true} }
func intPtr(v int) *int        { return &v }
