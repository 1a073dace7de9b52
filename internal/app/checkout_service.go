package app

import (
	"context"
	"strings"
	"time"

	"github.com/EderamorimTH/rifa-miguel/internal/clock"
	"github.com/EderamorimTH/rifa-miguel/internal/domain"
)

type CheckoutRepository interface {
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	// MarkPending moves a still-held order to pending. It returns
	// domain.ErrConflict when the order is no longer held by the buyer.
	MarkPending(ctx context.Context, in domain.PendingUpdate) error
}

// PaymentIntentCreator is the slice of the payment gateway used at checkout.
type PaymentIntentCreator interface {
	CreateIntent(ctx context.Context, req domain.IntentRequest) (domain.PaymentIntent, error)
}

type CheckoutService struct {
	repo           CheckoutRepository
	gateway        PaymentIntentCreator
	clock          clock.Clock
	paymentWindow  time.Duration
	gatewayTimeout time.Duration
	title          string
	unitPrice      float64
}

const (
	defaultPaymentWindow  = 15 * time.Minute
	defaultGatewayTimeout = 5 * time.Second
)

func NewCheckoutService(repo CheckoutRepository, gateway PaymentIntentCreator, clk clock.Clock, opts ...CheckoutOption) *CheckoutService {
	svc := &CheckoutService{
		repo:           repo,
		gateway:        gateway,
		clock:          clk,
		paymentWindow:  defaultPaymentWindow,
		gatewayTimeout: defaultGatewayTimeout,
		title:          "Raffle ticket",
		unitPrice:      1,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type CheckoutOption func(*CheckoutService)

// WithPaymentWindow sets how long a pending order stays held once an intent exists.
func WithPaymentWindow(d time.Duration) CheckoutOption {
	return func(s *CheckoutService) {
		if d > 0 {
			s.paymentWindow = d
		}
	}
}

func WithIntentTimeout(d time.Duration) CheckoutOption {
	return func(s *CheckoutService) {
		if d > 0 {
			s.gatewayTimeout = d
		}
	}
}

// WithTicketItem sets the line item shown by the provider.
func WithTicketItem(title string, unitPrice float64) CheckoutOption {
	return func(s *CheckoutService) {
		if title != "" {
			s.title = title
		}
		if unitPrice > 0 {
			s.unitPrice = unitPrice
		}
	}
}

type CreatePaymentInput struct {
	OrderID    string
	BuyerID    string
	BuyerName  string
	BuyerPhone string
}

type CreatePaymentResult struct {
	Order  domain.Order
	Intent domain.PaymentIntent
}

// CreatePayment creates a payment intent for a held order and advances it to
// pending. A gateway failure leaves the order untouched.
func (s *CheckoutService) CreatePayment(ctx context.Context, in CreatePaymentInput) (CreatePaymentResult, error) {
	if in.OrderID == "" {
		return CreatePaymentResult{}, domain.ErrInvalidID
	}
	if in.BuyerID == "" {
		return CreatePaymentResult{}, domain.ErrBuyerRequired
	}
	name := strings.TrimSpace(in.BuyerName)
	phone := strings.TrimSpace(in.BuyerPhone)
	if name == "" || phone == "" {
		return CreatePaymentResult{}, domain.ErrBuyerDetailsRequired
	}

	order, err := s.repo.GetOrder(ctx, in.OrderID)
	if err != nil {
		return CreatePaymentResult{}, err
	}
	now := s.clock.Now()
	if order.BuyerID != in.BuyerID || !order.Status.Holding() {
		return CreatePaymentResult{}, domain.ErrNotHolder
	}
	if order.Expired(now) {
		return CreatePaymentResult{}, domain.ErrHoldExpired
	}

	ref := domain.OrderReference{
		OrderID:    order.ID,
		Numbers:    order.Numbers,
		BuyerID:    order.BuyerID,
		BuyerName:  name,
		BuyerPhone: phone,
	}
	if _, err := ref.Encode(); err != nil {
		return CreatePaymentResult{}, err
	}

	gwCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	intent, err := s.gateway.CreateIntent(gwCtx, domain.IntentRequest{
		Reference: ref,
		Title:     s.title,
		UnitPrice: s.unitPrice,
	})
	cancel()
	if err != nil {
		return CreatePaymentResult{}, err
	}

	// only the first checkout opens the payment window
	expires := order.HoldExpiresAt
	if window := now.Add(s.paymentWindow); order.Status == domain.OrderStatusReserved && window.After(expires) {
		expires = window
	}
	if err := s.repo.MarkPending(ctx, domain.PendingUpdate{
		OrderID:       order.ID,
		BuyerID:       order.BuyerID,
		BuyerName:     name,
		BuyerPhone:    phone,
		IntentID:      intent.ID,
		HoldExpiresAt: expires,
		Now:           now,
	}); err != nil {
		return CreatePaymentResult{}, err
	}

	order.Status = domain.OrderStatusPending
	order.BuyerName = name
	order.BuyerPhone = phone
	order.IntentID = intent.ID
	order.HoldExpiresAt = expires
	return CreatePaymentResult{Order: order, Intent: intent}, nil
}
