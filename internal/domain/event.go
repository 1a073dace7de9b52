package domain

import "time"

const (
	EventOrderApproved = "order.approved"
	EventOrderReleased = "order.released"
)

// OrderEvent announces a terminal inventory change to downstream consumers.
type OrderEvent struct {
	Type       string    `json:"type"`
	OrderID    string    `json:"order_id"`
	Numbers    []string  `json:"numbers"`
	PaymentID  string    `json:"payment_id,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
