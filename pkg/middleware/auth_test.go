package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/medtrail/pkg/auth"
	"github.com/platinummonkey/medtrail/pkg/contextkeys"
)

func newTokens(t *testing.T) *auth.TokenManager {
	t.Helper()
	tm, err := auth.NewTokenManager("middleware-secret")
	require.NoError(t, err)
	return tm
}

func captureHandler(got **auth.Principal, userID *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = auth.PrincipalFromContext(r.Context())
		*userID = contextkeys.GetUserID(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware(t *testing.T) {
	tm := newTokens(t)
	valid, err := tm.Issue(auth.Principal{ID: "u-1", Role: auth.RoleAdmin, Username: "root"}, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name       string
		optional   bool
		header     string
		wantStatus int
		wantUser   string
	}{
		{"valid token", false, "Bearer " + valid, http.StatusOK, "u-1"},
		{"lowercase scheme", false, "bearer " + valid, http.StatusOK, "u-1"},
		{"missing header required", false, "", http.StatusUnauthorized, ""},
		{"missing header optional", true, "", http.StatusOK, ""},
		{"wrong scheme", true, "Basic abc", http.StatusUnauthorized, ""},
		{"empty token", true, "Bearer  ", http.StatusUnauthorized, ""},
		{"garbage token", true, "Bearer not.a.jwt", http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var principal *auth.Principal
			var userID string
			h := NewAuthMiddleware(tm, tt.optional).Handler(captureHandler(&principal, &userID))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantUser, userID)
			if tt.wantUser != "" {
				require.NotNil(t, principal)
				assert.Equal(t, auth.RoleAdmin, principal.Role)
			}
		})
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	var principal *auth.Principal
	var userID string
	h := NewAuthMiddleware(nil, false).Handler(captureHandler(&principal, &userID))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer whatever")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, principal)
}

func TestRequireRole(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := RequireRole(auth.RoleAdmin, auth.RoleLabTech)(ok)

	tests := []struct {
		name       string
		principal  *auth.Principal
		wantStatus int
	}{
		{"no principal", nil, http.StatusForbidden},
		{"wrong role", &auth.Principal{ID: "1", Role: auth.RoleReception}, http.StatusForbidden},
		{"admin", &auth.Principal{ID: "1", Role: auth.RoleAdmin}, http.StatusOK},
		{"lab tech", &auth.Principal{ID: "1", Role: auth.RoleLabTech}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.principal != nil {
				req = req.WithContext(contextkeys.WithPrincipal(req.Context(), tt.principal))
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}
