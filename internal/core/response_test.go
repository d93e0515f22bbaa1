package core

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"blackhub/internal/types"
)

func TestJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, httptest.NewRequest(http.MethodGet, "/", nil), http.StatusCreated, map[string]int{"n": 1})

	if rec.Code != http.StatusCreated {
		t.Errorf("status: got %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Errorf("content type: %q", rec.Header().Get("Content-Type"))
	}
	if strings.TrimSpace(rec.Body.String()) != `{"n":1}` {
		t.Errorf("body: %s", rec.Body.String())
	}
}

func TestJSON_MarshalFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, httptest.NewRequest(http.MethodGet, "/", nil), http.StatusOK, map[string]any{"ch": make(chan int)})

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}

func TestError_MapsAppError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   types.ErrorCode
	}{
		{types.NewAppError(types.ErrCodeValidationInvalidPlan, "bad plan", nil), http.StatusBadRequest, types.ErrCodeValidationInvalidPlan},
		{types.NewAppError(types.ErrCodePermissionListingLimit, "limit", nil), http.StatusForbidden, types.ErrCodePermissionListingLimit},
		{types.NewAppError(types.ErrCodeNotFoundListing, "nope", nil), http.StatusNotFound, types.ErrCodeNotFoundListing},
		{types.NewAppError(types.ErrCodeRateLimit, "slow", nil), http.StatusTooManyRequests, types.ErrCodeRateLimit},
		{types.NewAppError(types.ErrCodeUpstreamPayment, "gateway", nil), http.StatusBadGateway, types.ErrCodeUpstreamPayment},
		{errors.New("raw database text"), http.StatusInternalServerError, types.ErrCodeInternalUnexpected},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(types.WithRequestID(req.Context(), "req-1"))
			rec := httptest.NewRecorder()
			Error(rec, req, tt.err)

			if rec.Code != tt.status {
				t.Errorf("status: got %d, want %d", rec.Code, tt.status)
			}
			d := decodeError(t, rec)
			if d.Code != string(tt.code) {
				t.Errorf("code: got %q, want %q", d.Code, tt.code)
			}
			if d.RequestID != "req-1" {
				t.Errorf("request id: %q", d.RequestID)
			}
			if strings.Contains(rec.Body.String(), "raw database text") {
				t.Errorf("internal error text leaked")
			}
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	type body struct {
		Plan string `json:"plan"`
	}

	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"valid", `{"plan":"pro"}`, false},
		{"empty", ``, true},
		{"syntax", `{"plan":`, true},
		{"wrong type", `{"plan":5}`, true},
		{"unknown field", `{"plan":"pro","extra":1}`, true},
		{"trailing", `{"plan":"pro"}{"plan":"starter"}`, true},
		{"too large", `{"plan":"` + strings.Repeat("a", maxRequestBodySize) + `"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var dst body
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.in))
			err := DecodeJSON(httptest.NewRecorder(), req, &dst)
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if dst.Plan != "pro" {
					t.Errorf("decoded: %+v", dst)
				}
				return
			}
			if !types.IsCode(err, types.ErrCodeValidationInvalidJSON) {
				t.Errorf("expected invalid json error, got %v", err)
			}
		})
	}
}
