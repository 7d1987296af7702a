package httputil

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	dErrors "carepilot/pkg/domain-errors"
)

func TestWriteError(t *testing.T) {
	t.Run("internal error hides message", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeInternal, "pq: relation appointments does not exist"))

		if w.Code != http.StatusInternalServerError {
			t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}

		var body map[string]string
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if body["error"] != internalMessage {
			t.Fatalf("expected generic message, got %q", body["error"])
		}
		if body["code"] != "internal_error" {
			t.Fatalf("expected code internal_error, got %q", body["code"])
		}
	})

	t.Run("validation error includes message", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeValidation, "amount: must be greater than 0"))

		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}

		var body map[string]string
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if body["error"] != "amount: must be greater than 0" {
			t.Fatalf("expected validation message to be returned, got %q", body["error"])
		}
	})

	t.Run("timeout keeps its message", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeTimeout, "The assistant took too long to respond."))

		if w.Code != http.StatusInternalServerError {
			t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}
		var body map[string]string
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if body["error"] != "The assistant took too long to respond." {
			t.Fatalf("expected timeout message, got %q", body["error"])
		}
	})

	t.Run("quota and rate limit statuses", func(t *testing.T) {
		if got := StatusFor(dErrors.CodeRateLimited); got != http.StatusTooManyRequests {
			t.Fatalf("expected 429, got %d", got)
		}
		if got := StatusFor(dErrors.CodeQuotaExceeded); got != http.StatusPaymentRequired {
			t.Fatalf("expected 402, got %d", got)
		}
		if got := StatusFor(dErrors.CodeTimeout); got != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", got)
		}
	})
}

type decodeTarget struct {
	Name string `json:"name"`
}

func (d *decodeTarget) Validate() error {
	if d.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	return nil
}

func TestDecodeAndPrepare(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("valid body", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"jane"}`))
		got, ok := DecodeAndPrepare[decodeTarget](w, r, logger, r.Context(), "req-1")
		if !ok || got.Name != "jane" {
			t.Fatalf("expected decoded body, got %+v ok=%v", got, ok)
		}
	})

	t.Run("malformed json is a bad request", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":`))
		if _, ok := DecodeAndPrepare[decodeTarget](w, r, logger, r.Context(), "req-1"); ok {
			t.Fatal("expected failure")
		}
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
	})

	t.Run("validation failure keeps its message", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
		if _, ok := DecodeAndPrepare[decodeTarget](w, r, logger, r.Context(), "req-1"); ok {
			t.Fatal("expected failure")
		}
		var body ErrorResponse
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if body.Error != "name is required" {
			t.Fatalf("unexpected message %q", body.Error)
		}
	})
}
