package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

var teapot = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusTeapot)
})

func TestCORS(t *testing.T) {
	tests := []struct {
		name        string
		origins     []string
		method      string
		origin      string
		preflight   bool
		wantStatus  int
		wantAllowed string
	}{
		{"preflight allowed", []string{"http://localhost:5173"}, http.MethodOptions, "http://localhost:5173", true, http.StatusNoContent, "http://localhost:5173"},
		{"preflight allowed trailing slash config", []string{"http://localhost:5173/"}, http.MethodOptions, "http://localhost:5173", true, http.StatusNoContent, "http://localhost:5173"},
		{"preflight forbidden", []string{"http://localhost:5173"}, http.MethodOptions, "http://evil.local", true, http.StatusForbidden, ""},
		{"wildcard", []string{"*"}, http.MethodOptions, "http://any.local", true, http.StatusNoContent, "*"},
		{"simple allowed", []string{"http://localhost:5173"}, http.MethodGet, "http://localhost:5173", false, http.StatusTeapot, "http://localhost:5173"},
		{"simple unknown origin", []string{"http://localhost:5173"}, http.MethodGet, "http://evil.local", false, http.StatusTeapot, ""},
		{"no origin", []string{"http://localhost:5173"}, http.MethodPost, "", false, http.StatusTeapot, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/reservations", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			rec := httptest.NewRecorder()

			CORS(tt.origins, teapot).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllowed {
				t.Fatalf("expected allow origin %q, got %q", tt.wantAllowed, got)
			}
			if tt.wantStatus == http.StatusNoContent && rec.Header().Get("Access-Control-Max-Age") == "" {
				t.Fatalf("expected max age on preflight")
			}
		})
	}
}
