// Package mercadopago is the payment gateway client: it creates checkout
// preferences and resolves payment ids to their current status through the
// provider SDK.
package mercadopago

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/mperror"
	"github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/mercadopago/sdk-go/pkg/preference"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/EderamorimTH/rifa-miguel/internal/domain"
)

const DefaultBaseURL = "https://api.mercadopago.com"

type Config struct {
	// BaseURL redirects SDK traffic, for sandboxes and tests.
	BaseURL     string
	AccessToken string
	// NotificationURL is where the provider posts payment notifications.
	NotificationURL string
	// BackURL receives the buyer after checkout, with a status query.
	BackURL  string
	Currency string
	Timeout  time.Duration
}

type Client struct {
	cfg         Config
	payments    payment.Client
	preferences preference.Client
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("mercadopago base url %q: invalid", cfg.BaseURL)
	}
	if cfg.Currency == "" {
		cfg.Currency = "BRL"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	var transport http.RoundTripper = otelhttp.NewTransport(http.DefaultTransport)
	if cfg.BaseURL != DefaultBaseURL {
		transport = rebase{base: base, next: transport}
	}
	sdkCfg, err := config.New(cfg.AccessToken, config.WithHTTPClient(&http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
	}))
	if err != nil {
		return nil, fmt.Errorf("mercadopago config: %w", err)
	}

	return &Client{
		cfg:         cfg,
		payments:    payment.NewClient(sdkCfg),
		preferences: preference.NewClient(sdkCfg),
	}, nil
}

// rebase points requests the SDK addresses to the public API at base.
type rebase struct {
	base *url.URL
	next http.RoundTripper
}

func (rb rebase) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.URL.Scheme = rb.base.Scheme
	out.URL.Host = rb.base.Host
	out.URL.Path = rb.base.Path + req.URL.Path
	out.Host = ""
	return rb.next.RoundTrip(out)
}

// CreateIntent creates a checkout preference carrying the encoded order
// reference, one item per ticket number.
func (c *Client) CreateIntent(ctx context.Context, req domain.IntentRequest) (domain.PaymentIntent, error) {
	ref, err := req.Reference.Encode()
	if err != nil {
		return domain.PaymentIntent{}, err
	}

	body := preference.Request{
		Items: []preference.ItemRequest{{
			Title:      req.Title,
			Quantity:   len(req.Reference.Numbers),
			UnitPrice:  req.UnitPrice,
			CurrencyID: c.cfg.Currency,
		}},
		Payer:             &preference.PayerRequest{Name: req.Reference.BuyerName},
		ExternalReference: ref,
		NotificationURL:   c.cfg.NotificationURL,
	}
	if c.cfg.BackURL != "" {
		body.BackURLs = &preference.BackURLsRequest{
			Success: withStatus(c.cfg.BackURL, "success"),
			Failure: withStatus(c.cfg.BackURL, "failure"),
			Pending: withStatus(c.cfg.BackURL, "pending"),
		}
		body.AutoReturn = "approved"
	}

	out, err := c.preferences.Create(ctx, body)
	if err != nil {
		return domain.PaymentIntent{}, fmt.Errorf("create preference: %w", mapError(err))
	}
	if out == nil || out.ID == "" || out.InitPoint == "" {
		return domain.PaymentIntent{}, fmt.Errorf("create preference: %w: incomplete response", domain.ErrGatewayUnavailable)
	}
	return domain.PaymentIntent{ID: out.ID, RedirectURL: out.InitPoint}, nil
}

func withStatus(base, status string) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "status=" + status
}

// GetPayment returns the provider's current view of a payment. Payment ids
// are numeric; anything else cannot name a payment.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (domain.Payment, error) {
	id, err := strconv.Atoi(paymentID)
	if err != nil {
		return domain.Payment{}, fmt.Errorf("get payment %q: %w", paymentID, domain.ErrPaymentNotFound)
	}

	out, err := c.payments.Get(ctx, id)
	if err != nil {
		return domain.Payment{}, fmt.Errorf("get payment %s: %w", paymentID, mapError(err))
	}
	if out == nil {
		return domain.Payment{}, fmt.Errorf("get payment %s: %w: empty response", paymentID, domain.ErrGatewayUnavailable)
	}

	p := domain.Payment{
		ID:                paymentID,
		Status:            domain.PaymentStatus(out.Status),
		ProviderReference: nonZeroID(fmt.Sprint(out.Order.ID)),
		ExternalReference: out.ExternalReference,
	}
	if !out.DateApproved.IsZero() {
		at := out.DateApproved.UTC()
		p.ApprovedAt = &at
	}
	return p, nil
}

// SearchByMerchantOrder returns the newest payment of a merchant order, or ""
// when it has none yet.
func (c *Client) SearchByMerchantOrder(ctx context.Context, merchantOrderID string) (string, error) {
	out, err := c.payments.Search(ctx, payment.SearchRequest{
		Limit: 1,
		Filters: map[string]string{
			"merchant_order_id": merchantOrderID,
			"sort":              "date_created",
			"criteria":          "desc",
		},
	})
	if err != nil {
		return "", fmt.Errorf("search merchant order %s: %w", merchantOrderID, mapError(err))
	}
	if out == nil || len(out.Results) == 0 {
		return "", nil
	}
	return nonZeroID(fmt.Sprint(out.Results[0].ID)), nil
}

func nonZeroID(id string) string {
	if id == "0" {
		return ""
	}
	return id
}

// mapError classifies SDK failures. Transport failures, timeouts, throttling
// and 5xx map to domain.ErrGatewayUnavailable, 404 to
// domain.ErrPaymentNotFound and malformed-request statuses to
// domain.ErrStructural. Auth failures stay unclassified.
func mapError(err error) error {
	var resp *mperror.ResponseError
	if !errors.As(err, &resp) {
		return fmt.Errorf("%w: %v", domain.ErrGatewayUnavailable, err)
	}

	switch code := resp.StatusCode; {
	case code == http.StatusNotFound:
		return domain.ErrPaymentNotFound
	case code == http.StatusTooManyRequests || code >= 500:
		return fmt.Errorf("%w: status %d", domain.ErrGatewayUnavailable, code)
	case code == http.StatusBadRequest || code == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: provider rejected request: status %d: %s", domain.ErrStructural, code, snippet(resp.Message))
	default:
		return fmt.Errorf("provider rejected request: status %d: %s", code, snippet(resp.Message))
	}
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 512 {
		return s[:512]
	}
	return s
}
