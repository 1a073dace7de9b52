package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/EderamorimTH/rifa-miguel/internal/app"
	"github.com/EderamorimTH/rifa-miguel/internal/domain"
)

// Reserver is the minimal interface needed to hold and verify numbers.
type Reserver interface {
	Reserve(ctx context.Context, in app.ReserveInput) (domain.Order, error)
	Verify(ctx context.Context, orderID, buyerID string) (bool, error)
}

// PaymentCreator is the minimal interface needed to start checkout.
type PaymentCreator interface {
	CreatePayment(ctx context.Context, in app.CreatePaymentInput) (app.CreatePaymentResult, error)
}

// HandleReserve returns an HTTP handler for POST /reservations.
func HandleReserve(svc Reserver, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}

		var req reserveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		order, err := svc.Reserve(r.Context(), app.ReserveInput{
			Numbers: req.Numbers,
			BuyerID: req.BuyerID,
		})
		if err != nil {
			var held *domain.HeldError
			switch {
			case errors.As(err, &held):
				writeErrorResponse(w, http.StatusBadRequest, errorResponse{
					Error:   "numbers already held",
					Code:    codeNumbersAlreadyHeld,
					Numbers: held.Numbers,
				})
			case errors.Is(err, domain.ErrInvalidNumbers):
				writeError(w, http.StatusBadRequest, codeInvalidNumbers, err.Error())
			case errors.Is(err, domain.ErrBuyerRequired):
				writeError(w, http.StatusBadRequest, codeBuyerRequired, err.Error())
			default:
				logger.Error("reserve failed", "error", err)
				writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			}
			return
		}

		writeJSON(w, http.StatusCreated, reservationResponse{
			OrderID:       order.ID,
			Status:        string(order.Status),
			Numbers:       order.Numbers,
			HoldExpiresAt: order.HoldExpiresAt,
		})
	}
}

type reserveRequest struct {
	Numbers []string `json:"numbers"`
	BuyerID string   `json:"buyer_id"`
}

type reservationResponse struct {
	OrderID       string    `json:"order_id"`
	Status        string    `json:"status"`
	Numbers       []string  `json:"numbers"`
	HoldExpiresAt time.Time `json:"hold_expires_at"`
}

// HandleReservation serves GET /reservations/{id} and
// POST /reservations/{id}/payment.
func HandleReservation(reservations Reserver, checkout PaymentCreator, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, action, ok := parseReservationPath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		switch action {
		case "":
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			verifyReservation(w, r, reservations, orderID, logger)
		case "payment":
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			createPayment(w, r, checkout, orderID, logger)
		default:
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
		}
	}
}

func parseReservationPath(path string) (id, action string, ok bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 || len(parts) > 3 || parts[0] != "reservations" || parts[1] == "" {
		return "", "", false
	}
	if len(parts) == 3 {
		return parts[1], parts[2], true
	}
	return parts[1], "", true
}

func verifyReservation(w http.ResponseWriter, r *http.Request, svc Reserver, orderID string, logger *slog.Logger) {
	valid, err := svc.Verify(r.Context(), orderID, r.URL.Query().Get("buyer_id"))
	if err != nil {
		if errors.Is(err, domain.ErrInvalidID) {
			writeError(w, http.StatusBadRequest, codeInvalidID, err.Error())
			return
		}
		logger.Error("verify reservation failed", "order_id", orderID, "error", err)
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, verifyResponse{OrderID: orderID, Valid: valid})
}

type verifyResponse struct {
	OrderID string `json:"order_id"`
	Valid   bool   `json:"valid"`
}

func createPayment(w http.ResponseWriter, r *http.Request, svc PaymentCreator, orderID string, logger *slog.Logger) {
	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		return
	}

	res, err := svc.CreatePayment(r.Context(), app.CreatePaymentInput{
		OrderID:    orderID,
		BuyerID:    req.BuyerID,
		BuyerName:  req.BuyerName,
		BuyerPhone: req.BuyerPhone,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidID):
			writeError(w, http.StatusBadRequest, codeInvalidID, err.Error())
		case errors.Is(err, domain.ErrBuyerRequired):
			writeError(w, http.StatusBadRequest, codeBuyerRequired, err.Error())
		case errors.Is(err, domain.ErrBuyerDetailsRequired):
			writeError(w, http.StatusBadRequest, codeBuyerDetails, err.Error())
		case errors.Is(err, domain.ErrReferenceTooLong):
			writeError(w, http.StatusBadRequest, codeOrderTooLarge, domain.ErrReferenceTooLong.Error())
		case errors.Is(err, domain.ErrOrderNotFound):
			writeError(w, http.StatusNotFound, codeOrderNotFound, err.Error())
		case errors.Is(err, domain.ErrHoldExpired):
			writeError(w, http.StatusConflict, codeHoldExpired, err.Error())
		case errors.Is(err, domain.ErrNotHolder), errors.Is(err, domain.ErrConflict):
			writeError(w, http.StatusConflict, codeNotHolder, domain.ErrNotHolder.Error())
		case errors.Is(err, domain.ErrGatewayUnavailable), errors.Is(err, domain.ErrStructural):
			logger.Warn("payment intent failed", "order_id", orderID, "error", err)
			writeError(w, http.StatusBadGateway, codeGatewayUnavailable, "payment provider unavailable")
		default:
			logger.Error("create payment failed", "order_id", orderID, "error", err)
			writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusCreated, paymentResponse{
		OrderID:       res.Order.ID,
		Status:        string(res.Order.Status),
		IntentID:      res.Intent.ID,
		RedirectURL:   res.Intent.RedirectURL,
		HoldExpiresAt: res.Order.HoldExpiresAt,
	})
}

type paymentRequest struct {
	BuyerID    string `json:"buyer_id"`
	BuyerName  string `json:"buyer_name"`
	BuyerPhone string `json:"buyer_phone"`
}

type paymentResponse struct {
	OrderID       string    `json:"order_id"`
	Status        string    `json:"status"`
	IntentID      string    `json:"intent_id"`
	RedirectURL   string    `json:"redirect_url"`
	HoldExpiresAt time.Time `json:"hold_expires_at"`
}
