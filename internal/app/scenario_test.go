package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EderamorimTH/rifa-miguel/internal/clock"
	"github.com/EderamorimTH/rifa-miguel/internal/domain"
)

// Walks one raffle through reserve, conflicting reserve, checkout, approval,
// redelivery and expiry of an abandoned order.
func TestRaffleLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	clk := clock.NewManual(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	store := newMemStore()
	gw := newFakeGateway()
	pub := &recordingPublisher{}

	reservations := NewReservationService(store, clk, testFormat, WithHoldTTL(5*time.Minute), WithReservationEvents(pub, nil))
	checkout := NewCheckoutService(store, gw, clk, WithPaymentWindow(15*time.Minute))
	reconciler := NewReconciler(store, store, gw, clk, nil, WithReconcilerEvents(pub))
	sweeper := NewSweeper(store, clk, nil, WithSweeperEvents(pub))

	orderA, err := reservations.Reserve(ctx, ReserveInput{Numbers: []string{"0001", "0002"}, BuyerID: "buyer-a"})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusReserved, orderA.Status)

	_, err = reservations.Reserve(ctx, ReserveInput{Numbers: []string{"0002", "0003"}, BuyerID: "buyer-b"})
	var held *domain.HeldError
	require.True(t, errors.As(err, &held))
	assert.Equal(t, []string{"0002"}, held.Numbers)

	abandoned, err := reservations.Reserve(ctx, ReserveInput{Numbers: []string{"0010"}, BuyerID: "buyer-c"})
	require.NoError(t, err)

	res, err := checkout.CreatePayment(ctx, CreatePaymentInput{
		OrderID:    orderA.ID,
		BuyerID:    "buyer-a",
		BuyerName:  "Ana",
		BuyerPhone: "5511999990000",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, res.Order.Status)

	raw, err := gw.intents[0].Reference.Encode()
	require.NoError(t, err)
	gw.setPayment(domain.Payment{
		ID:                "pay-1",
		Status:            domain.PaymentApproved,
		ProviderReference: res.Intent.ID,
		ExternalReference: raw,
	})

	require.Equal(t, OutcomeApproved, reconciler.Handle(ctx, domain.PaymentNotification{PaymentID: "pay-1"}))
	approved := store.order(orderA.ID)
	assert.Equal(t, domain.OrderStatusApproved, approved.Status)

	require.Equal(t, OutcomeDuplicate, reconciler.Handle(ctx, domain.PaymentNotification{PaymentID: "pay-1"}))
	assert.Equal(t, approved, store.order(orderA.ID))

	clk.Advance(6 * time.Minute)
	released, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, released)
	assert.Equal(t, domain.OrderStatusReleased, store.order(abandoned.ID).Status)
	assert.Equal(t, domain.OrderStatusApproved, store.order(orderA.ID).Status)

	_, err = reservations.Reserve(ctx, ReserveInput{Numbers: []string{"0010"}, BuyerID: "buyer-d"})
	require.NoError(t, err)

	clk.Advance(24 * time.Hour)
	_, err = reservations.Reserve(ctx, ReserveInput{Numbers: []string{"0002"}, BuyerID: "buyer-d"})
	require.ErrorIs(t, err, domain.ErrAlreadyHeld)

	assert.Equal(t, []string{domain.EventOrderApproved, domain.EventOrderReleased}, pub.types())
}
