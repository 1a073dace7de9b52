package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOrderStatus_Predicates(t *testing.T) {
	cases := []struct {
		status        OrderStatus
		holding, live bool
	}{
		{OrderStatusReserved, true, true},
		{OrderStatusPending, true, true},
		{OrderStatusApproved, false, true},
		{OrderStatusReleased, false, false},
		{"mystery", false, false},
	}
	for _, tt := range cases {
		assert.Equal(t, tt.holding, tt.status.Holding(), tt.status)
		assert.Equal(t, tt.live, tt.status.Live(), tt.status)
	}
}

func TestOrder_HoldPredicates(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	o := Order{
		Numbers:       []string{"0001", "0002"},
		BuyerID:       "buyer-a",
		Status:        OrderStatusReserved,
		HoldExpiresAt: now.Add(time.Minute),
	}

	assert.False(t, o.Expired(now))
	assert.True(t, o.HeldBy("buyer-a", now))
	assert.False(t, o.HeldBy("buyer-b", now))
	assert.False(t, o.HeldBy("", now))
	assert.True(t, o.Expired(now.Add(2*time.Minute)))
	assert.False(t, o.HeldBy("buyer-a", now.Add(2*time.Minute)))

	o.Status = OrderStatusApproved
	assert.False(t, o.Expired(now.Add(time.Hour)), "approved orders never expire")
}

func TestOrder_Covers(t *testing.T) {
	o := Order{Numbers: []string{"0001", "0002", "0003"}}
	assert.True(t, o.Covers([]string{"0002"}))
	assert.True(t, o.Covers([]string{"0001", "0002", "0003"}))
	assert.False(t, o.Covers([]string{"0002", "0004"}))
	assert.False(t, o.Covers(nil))
}

func TestHeldError(t *testing.T) {
	var err error = &HeldError{Numbers: []string{"0002"}}
	assert.True(t, errors.Is(err, ErrAlreadyHeld))
	assert.Contains(t, err.Error(), "0002")

	var held *HeldError
	assert.True(t, errors.As(err, &held))
	assert.Equal(t, []string{"0002"}, held.Numbers)
}
