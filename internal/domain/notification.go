package domain

// Notification is a decoded provider webhook. Every variant resolves to at
// most one payment identifier before reconciliation starts.
type Notification interface {
	notification()
}

// PaymentNotification names a payment directly (payment events and generic
// topic/resource events carrying a numeric resource).
type PaymentNotification struct {
	PaymentID string
}

// MerchantOrderNotification names a merchant order whose payment must be
// looked up through the gateway.
type MerchantOrderNotification struct {
	MerchantOrderID string
}

// UnknownNotification carries nothing actionable.
type UnknownNotification struct{}

func (PaymentNotification) notification()       {}
func (MerchantOrderNotification) notification() {}
func (UnknownNotification) notification()       {}
