package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/cybershield/internal/identity"
	"github.com/hitoshi/cybershield/internal/model"
)

// --- モック ---

type mockVerifier struct {
	verifyFn func(ctx context.Context, token string) (*identity.Identity, error)
}

func (m *mockVerifier) Verify(ctx context.Context, token string) (*identity.Identity, error) {
	return m.verifyFn(ctx, token)
}

type mockUserFinder struct {
	findByUIDFn func(ctx context.Context, uid string) (*model.User, error)
	calls       int
}

func (m *mockUserFinder) FindByUID(ctx context.Context, uid string) (*model.User, error) {
	m.calls++
	return m.findByUIDFn(ctx, uid)
}

type mockAuthRecorder struct {
	reasons []string
}

func (m *mockAuthRecorder) RecordAuthFailure(reason string) {
	m.reasons = append(m.reasons, reason)
}

func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if called != nil {
			*called = true
		}
		w.WriteHeader(http.StatusOK)
	})
}

func requestAs(uid string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	if uid != "" {
		req = req.WithContext(ContextWithIdentity(req.Context(), &identity.Identity{UID: uid}))
	}
	return req
}

func decodeErrorBody(t *testing.T, w *httptest.ResponseRecorder) ErrorResponseBody {
	t.Helper()
	var body ErrorResponseBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v\nraw: %s", err, w.Body.String())
	}
	return body
}
