package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/EderamorimTH/rifa-miguel/internal/app"
)

type AvailabilityReader interface {
	Availability(ctx context.Context) (app.Availability, error)
}

// HandleNumbers returns an HTTP handler for GET /numbers.
func HandleNumbers(svc AvailabilityReader, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}

		av, err := svc.Availability(r.Context())
		if err != nil {
			logger.Error("availability failed", "error", err)
			writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, numbersResponse{
			Supply:    av.Supply,
			Available: av.Available,
			Sold:      av.Sold,
			Held:      av.Held,
		})
	}
}

type numbersResponse struct {
	Supply    int      `json:"supply"`
	Available int      `json:"available"`
	Sold      []string `json:"sold"`
	Held      []string `json:"held"`
}
