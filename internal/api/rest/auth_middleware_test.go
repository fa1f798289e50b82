package rest

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procuredesk/tender-evaluation-backend/internal/domain/identity"
)

func newTestAuth() *AuthMiddleware {
	return NewAuthMiddleware(&AuthConfig{
		JWTSecret:   []byte("test-secret"),
		TokenExpiry: time.Hour,
		Issuer:      "tender-evaluation-backend",
	})
}

func callerEcho(t *testing.T, captured *identity.Caller) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := CallerFromContext(r.Context())
		require.True(t, ok)
		*captured = caller
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	auth := newTestAuth()
	caller := identity.Caller{ID: uuid.New(), Role: identity.RoleProcurementOfficer, Email: "officer@example.com"}

	token, err := auth.IssueToken(caller, time.Now())
	require.NoError(t, err)

	var got identity.Caller
	handler := auth.Middleware()(callerEcho(t, &got))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tenders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, caller.ID, got.ID)
	assert.Equal(t, identity.RoleProcurementOfficer, got.Role)
	assert.Equal(t, "officer@example.com", got.Email)
}

func TestAuthMiddleware_Rejections(t *testing.T) {
	auth := newTestAuth()

	expired, err := auth.IssueToken(
		identity.Caller{ID: uuid.New(), Role: identity.RoleBidder},
		time.Now().Add(-2*time.Hour))
	require.NoError(t, err)

	wrongIssuer := NewAuthMiddleware(&AuthConfig{
		JWTSecret:   []byte("test-secret"),
		TokenExpiry: time.Hour,
		Issuer:      "someone-else",
	})
	foreign, err := wrongIssuer.IssueToken(
		identity.Caller{ID: uuid.New(), Role: identity.RoleBidder}, time.Now())
	require.NoError(t, err)

	wrongSecret := NewAuthMiddleware(&AuthConfig{
		JWTSecret:   []byte("other-secret"),
		TokenExpiry: time.Hour,
		Issuer:      "tender-evaluation-backend",
	})
	forged, err := wrongSecret.IssueToken(
		identity.Caller{ID: uuid.New(), Role: identity.RoleBidder}, time.Now())
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing header", header: ""},
		{name: "not a bearer scheme", header: "Basic dXNlcjpwYXNz"},
		{name: "garbage token", header: "Bearer not-a-jwt"},
		{name: "expired token", header: "Bearer " + expired},
		{name: "wrong issuer", header: "Bearer " + foreign},
		{name: "wrong signing key", header: "Bearer " + forged},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("the handler must never run")
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/tenders", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
			assert.Contains(t, rec.Body.String(), "UNAUTHORIZED")
		})
	}
}
