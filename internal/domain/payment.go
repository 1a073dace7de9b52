package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// MaxReferenceLength is the provider's limit on a preference's
// external_reference.
const MaxReferenceLength = 256

// PaymentStatus is the provider's payment status string.
type PaymentStatus string

const (
	PaymentApproved    PaymentStatus = "approved"
	PaymentPending     PaymentStatus = "pending"
	PaymentInProcess   PaymentStatus = "in_process"
	PaymentAuthorized  PaymentStatus = "authorized"
	PaymentInMediation PaymentStatus = "in_mediation"
	PaymentRejected    PaymentStatus = "rejected"
	PaymentCancelled   PaymentStatus = "cancelled"
	PaymentRefunded    PaymentStatus = "refunded"
	PaymentChargedBack PaymentStatus = "charged_back"
)

type PaymentOutcome int

const (
	OutcomeUndecided PaymentOutcome = iota
	OutcomeApproved
	OutcomeFailed
)

// Outcome collapses a provider status into the inventory decision it implies.
// Unknown statuses are treated as undecided so inventory is never touched on
// a status we do not understand.
func (s PaymentStatus) Outcome() PaymentOutcome {
	switch s {
	case PaymentApproved:
		return OutcomeApproved
	case PaymentRejected, PaymentCancelled, PaymentRefunded, PaymentChargedBack:
		return OutcomeFailed
	default:
		return OutcomeUndecided
	}
}

// Payment is the authoritative payment state returned by the gateway.
type Payment struct {
	ID                string
	Status            PaymentStatus
	ApprovedAt        *time.Time
	ProviderReference string
	ExternalReference string
}

// PaymentIntent is a created checkout preference.
type PaymentIntent struct {
	ID          string
	RedirectURL string
}

// IntentRequest carries what the gateway needs to build a checkout preference.
type IntentRequest struct {
	Reference OrderReference
	Title     string
	UnitPrice float64
}

// OrderReference is the opaque descriptor embedded in a payment intent and
// decoded again when the provider reports on the payment.
type OrderReference struct {
	OrderID    string   `json:"orderId,omitempty"`
	Numbers    []string `json:"numbers"`
	BuyerID    string   `json:"userId"`
	BuyerName  string   `json:"buyerName"`
	BuyerPhone string   `json:"buyerPhone"`
}

// Encode renders the reference as the provider will store it. References the
// provider would reject for length fail with ErrReferenceTooLong.
func (r OrderReference) Encode() (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encode order reference: %w", err)
	}
	if len(b) > MaxReferenceLength {
		return "", fmt.Errorf("%w: %d bytes", ErrReferenceTooLong, len(b))
	}
	return string(b), nil
}

// DecodeOrderReference parses an external reference. A reference that cannot
// name an order is structural: redelivery will never fix it.
func DecodeOrderReference(raw string) (OrderReference, error) {
	var ref OrderReference
	if raw == "" {
		return ref, fmt.Errorf("%w: empty external reference", ErrStructural)
	}
	if err := json.Unmarshal([]byte(raw), &ref); err != nil {
		return ref, fmt.Errorf("%w: external reference: %v", ErrStructural, err)
	}
	if len(ref.Numbers) == 0 || ref.BuyerID == "" {
		return ref, fmt.Errorf("%w: incomplete external reference", ErrStructural)
	}
	if strings.TrimSpace(ref.BuyerName) == "" || strings.TrimSpace(ref.BuyerPhone) == "" {
		return ref, fmt.Errorf("%w: external reference without buyer details", ErrStructural)
	}
	return ref, nil
}
