package app

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/EderamorimTH/rifa-miguel/internal/domain"
)

// memStore is an in-memory implementation of every repository port. Each
// method is atomic; WithTx serializes whole transactions.
type memStore struct {
	txMu   sync.Mutex
	mu     sync.Mutex
	orders map[string]domain.Order
	owners map[string]string
	claims map[string]memClaim
}

type memClaim struct {
	holder    string
	expiresAt time.Time
}

func newMemStore(orders ...domain.Order) *memStore {
	s := &memStore{
		orders: make(map[string]domain.Order),
		owners: make(map[string]string),
		claims: make(map[string]memClaim),
	}
	for _, o := range orders {
		s.put(o)
	}
	return s
}

func (s *memStore) put(o domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o
	if o.Status.Live() {
		for _, n := range o.Numbers {
			s.owners[n] = o.ID
		}
	}
}

func (s *memStore) order(id string) domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[id]
}

func (s *memStore) owner(number string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owners[number]
}

func (s *memStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(ctx)
}

func (s *memStore) releaseLocked(id string, now time.Time) domain.Order {
	o := s.orders[id]
	o.Status = domain.OrderStatusReleased
	releasedAt := now
	o.ReleasedAt = &releasedAt
	s.orders[id] = o
	for _, n := range o.Numbers {
		if s.owners[n] == id {
			delete(s.owners, n)
		}
	}
	return o
}

func (s *memStore) ReleaseExpiredByNumbers(_ context.Context, numbers []string, now time.Time) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]bool{}
	var out []domain.Order
	for _, n := range numbers {
		id, ok := s.owners[n]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		if s.orders[id].Expired(now) {
			out = append(out, s.releaseLocked(id, now))
		}
	}
	return out, nil
}

func (s *memStore) CreateOrder(_ context.Context, order domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var held []string
	for _, n := range order.Numbers {
		if _, ok := s.owners[n]; ok {
			held = append(held, n)
		}
	}
	if len(held) > 0 {
		slices.Sort(held)
		return &domain.HeldError{Numbers: held}
	}
	s.orders[order.ID] = order
	for _, n := range order.Numbers {
		s.owners[n] = order.ID
	}
	return nil
}

func (s *memStore) GetOrder(_ context.Context, orderID string) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return o, nil
}

func (s *memStore) MarkPending(_ context.Context, in domain.PendingUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[in.OrderID]
	if !ok || !o.HeldBy(in.BuyerID, in.Now) {
		return domain.ErrConflict
	}
	if o.Status == domain.OrderStatusReserved && in.HoldExpiresAt.After(o.HoldExpiresAt) {
		o.HoldExpiresAt = in.HoldExpiresAt
	}
	o.Status = domain.OrderStatusPending
	o.BuyerName = in.BuyerName
	o.BuyerPhone = in.BuyerPhone
	o.IntentID = in.IntentID
	s.orders[o.ID] = o
	return nil
}

func (s *memStore) ReleaseExpired(_ context.Context, now time.Time, limit int) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, o := range s.orders {
		if o.Expired(now) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]domain.Order, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.releaseLocked(id, now))
	}
	return out, nil
}

func (s *memStore) FindOrderByPaymentID(_ context.Context, paymentID string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.PaymentID == paymentID {
			return &o, nil
		}
	}
	return nil, nil
}

func (s *memStore) FindHoldingOrder(_ context.Context, buyerID string, numbers []string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.BuyerID == buyerID && o.Status.Holding() && o.Covers(numbers) {
			return &o, nil
		}
	}
	return nil, nil
}

func (s *memStore) ApproveOrder(_ context.Context, a domain.Approval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[a.OrderID]
	if !ok || !o.Status.Holding() || !slices.Equal(o.Numbers, a.Numbers) {
		return domain.ErrConflict
	}
	for _, other := range s.orders {
		if other.PaymentID == a.PaymentID && other.ID != a.OrderID {
			return fmt.Errorf("%w: payment %s already applied", domain.ErrConflict, a.PaymentID)
		}
	}
	approvedAt := a.ApprovedAt
	o.Status = domain.OrderStatusApproved
	o.PaymentID = a.PaymentID
	o.ProviderReference = a.ProviderReference
	if a.BuyerName != "" {
		o.BuyerName = a.BuyerName
	}
	if a.BuyerPhone != "" {
		o.BuyerPhone = a.BuyerPhone
	}
	o.ApprovedAt = &approvedAt
	o.BuyerID = ""
	o.HoldExpiresAt = time.Time{}
	s.orders[o.ID] = o
	return nil
}

func (s *memStore) ReleaseOrder(_ context.Context, orderID string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok || !o.Status.Holding() {
		return false, nil
	}
	s.releaseLocked(orderID, now)
	return true, nil
}

func (s *memStore) ClaimPayment(_ context.Context, paymentID, holder string, now time.Time, lease time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.claims[paymentID]; ok && c.expiresAt.After(now) {
		return false, nil
	}
	s.claims[paymentID] = memClaim{holder: holder, expiresAt: now.Add(lease)}
	return true, nil
}

func (s *memStore) ReleasePaymentClaim(_ context.Context, paymentID, holder string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.claims[paymentID]; ok && c.holder == holder {
		delete(s.claims, paymentID)
	}
	return nil
}

func (s *memStore) ListLiveNumbers(_ context.Context) ([]domain.NumberState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.NumberState, 0, len(s.owners))
	for n, id := range s.owners {
		o := s.orders[id]
		out = append(out, domain.NumberState{Number: n, Status: o.Status, HoldExpiresAt: o.HoldExpiresAt})
	}
	return out, nil
}

// fakeGateway serves payments from memory and records created intents.
type fakeGateway struct {
	mu             sync.Mutex
	payments       map[string]domain.Payment
	merchantOrders map[string]string
	intents        []domain.IntentRequest
	getErr         error
	intentErr      error
	getCalls       int
	onGet          func()
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		payments:       make(map[string]domain.Payment),
		merchantOrders: make(map[string]string),
	}
}

func (g *fakeGateway) CreateIntent(_ context.Context, req domain.IntentRequest) (domain.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.intentErr != nil {
		return domain.PaymentIntent{}, g.intentErr
	}
	g.intents = append(g.intents, req)
	id := fmt.Sprintf("pref-%d", len(g.intents))
	return domain.PaymentIntent{ID: id, RedirectURL: "https://pay.example/checkout/" + id}, nil
}

func (g *fakeGateway) GetPayment(_ context.Context, paymentID string) (domain.Payment, error) {
	g.mu.Lock()
	g.getCalls++
	hook := g.onGet
	err := g.getErr
	p, ok := g.payments[paymentID]
	g.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return domain.Payment{}, err
	}
	if !ok {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	return p, nil
}

func (g *fakeGateway) SearchByMerchantOrder(_ context.Context, merchantOrderID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.getErr != nil {
		return "", g.getErr
	}
	return g.merchantOrders[merchantOrderID], nil
}

func (g *fakeGateway) setPayment(p domain.Payment) {
	g.mu.Lock()
	g.payments[p.ID] = p
	g.mu.Unlock()
}

func (g *fakeGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.getCalls
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.OrderEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev domain.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

var testFormat = domain.NumberFormat{Supply: 300, Width: 4}

func heldOrder(id, buyer string, status domain.OrderStatus, expires time.Time, numbers ...string) domain.Order {
	return domain.Order{
		ID:            id,
		Numbers:       numbers,
		BuyerID:       buyer,
		Status:        status,
		HoldExpiresAt: expires,
		CreatedAt:     expires.Add(-5 * time.Minute),
	}
}
