package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"blackhub/internal/core"
	"blackhub/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testValidator() *core.Validator {
	return core.NewValidator(testLogger())
}

func passthrough(next http.Handler) http.Handler { return next }

// userContext returns a context carrying an authenticated user.
func userContext(id, email string) context.Context {
	ctx := types.WithRequestID(context.Background(), "req-test")
	return types.WithActor(ctx, types.Actor{ID: id, Email: email, Type: types.ActorTypeUser})
}

func makeRequest(ctx context.Context, method, path string, body any) *http.Request {
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		_ = json.NewEncoder(&buf).Encode(b)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if ctx != nil {
		req = req.WithContext(ctx)
	}
	return req
}

// withURLParam attaches a chi route parameter to req.
func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, target any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), target), "body: %s", rr.Body.String())
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var resp core.APIErrorResponse
	decodeBody(t, rr, &resp)
	return resp.Error.Code
}

// recordingDispatcher captures queued notifications.
type recordingDispatcher struct {
	sent []types.Notification
	err  error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, n types.Notification) error {
	d.sent = append(d.sent, n)
	return d.err
}
