package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/EderamorimTH/rifa-miguel/internal/app"
	"github.com/EderamorimTH/rifa-miguel/internal/domain"
)

// NotificationHandler applies one decoded payment notification.
type NotificationHandler interface {
	Handle(ctx context.Context, n domain.Notification) app.Outcome
}

const (
	maxWebhookBody = 64 << 10
	webhookTimeout = 20 * time.Second
)

// HandleWebhook returns the provider notification endpoint. Every POST is
// acknowledged with 200 whatever the outcome; redelivery is driven by the
// provider's own retry policy, not by our status codes.
func HandleWebhook(svc NotificationHandler, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			logger.Warn("read webhook body failed", "error", err)
		}
		n := decodeNotification(body, r.URL.Query())

		// the provider may hang up before processing ends
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), webhookTimeout)
		defer cancel()
		svc.Handle(ctx, n)

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}

type webhookBody struct {
	Type     string `json:"type"`
	Topic    string `json:"topic"`
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Data     struct {
		ID json.RawMessage `json:"id"`
	} `json:"data"`
}

// decodeNotification accepts the provider's JSON shapes and the legacy
// query-string form. Anything it cannot place is an UnknownNotification.
func decodeNotification(raw []byte, query url.Values) domain.Notification {
	var body webhookBody
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &body)
	}

	kind := firstNonEmpty(body.Type, body.Topic, query.Get("type"), query.Get("topic"))
	dataID := firstNonEmpty(rawID(body.Data.ID), query.Get("data.id"))

	if strings.Contains(kind, "merchant_order") {
		id := firstNonEmpty(dataID, lastDigits(body.Resource), query.Get("id"))
		if id == "" {
			return domain.UnknownNotification{}
		}
		return domain.MerchantOrderNotification{MerchantOrderID: id}
	}

	id := dataID
	if id == "" && isDigits(body.Resource) {
		id = body.Resource
	}
	if id == "" && (kind == "" || kind == "payment") {
		id = query.Get("id")
	}
	if id == "" {
		return domain.UnknownNotification{}
	}
	return domain.PaymentNotification{PaymentID: id}
}

// rawID renders a JSON string or number id as text.
func rawID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func lastDigits(resource string) string {
	i := strings.LastIndex(resource, "/")
	tail := resource[i+1:]
	if isDigits(tail) {
		return tail
	}
	return ""
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
