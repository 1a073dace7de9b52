package domain

import (
	"slices"
	"time"
)

type OrderStatus string

const (
	OrderStatusReserved OrderStatus = "reserved"
	OrderStatusPending  OrderStatus = "pending"
	OrderStatusApproved OrderStatus = "approved"
	OrderStatusReleased OrderStatus = "released"
)

// Holding reports whether the order still carries a temporary hold.
func (s OrderStatus) Holding() bool {
	return s == OrderStatusReserved || s == OrderStatusPending
}

// Live reports whether numbers in an order with this status are unavailable.
func (s OrderStatus) Live() bool {
	return s.Holding() || s == OrderStatusApproved
}

// Order is the unit of reservation and payment. Numbers never change after
// creation; an order is approved or released as a whole.
type Order struct {
	ID                string
	Numbers           []string
	BuyerID           string
	BuyerName         string
	BuyerPhone        string
	Status            OrderStatus
	HoldExpiresAt     time.Time
	IntentID          string
	PaymentID         string
	ProviderReference string
	ApprovedAt        *time.Time
	ReleasedAt        *time.Time
	CreatedAt         time.Time
}

// Expired reports whether a holding order has outlived its hold at now.
func (o Order) Expired(now time.Time) bool {
	return o.Status.Holding() && !o.HoldExpiresAt.IsZero() && o.HoldExpiresAt.Before(now)
}

// HeldBy reports whether buyerID still holds the order at now.
func (o Order) HeldBy(buyerID string, now time.Time) bool {
	return buyerID != "" && o.BuyerID == buyerID && o.Status.Holding() && !o.Expired(now)
}

// Covers reports whether every number in numbers belongs to the order.
func (o Order) Covers(numbers []string) bool {
	if len(numbers) == 0 {
		return false
	}
	for _, n := range numbers {
		if !slices.Contains(o.Numbers, n) {
			return false
		}
	}
	return true
}

// PendingUpdate advances a held order once a payment intent exists.
type PendingUpdate struct {
	OrderID       string
	BuyerID       string
	BuyerName     string
	BuyerPhone    string
	IntentID      string
	HoldExpiresAt time.Time
	Now           time.Time
}

// Approval settles an order against a confirmed payment.
type Approval struct {
	OrderID           string
	Numbers           []string
	PaymentID         string
	ProviderReference string
	BuyerName         string
	BuyerPhone        string
	ApprovedAt        time.Time
}

// NumberState is the current owner status of a number held by a live order.
type NumberState struct {
	Number        string
	Status        OrderStatus
	HoldExpiresAt time.Time
}
