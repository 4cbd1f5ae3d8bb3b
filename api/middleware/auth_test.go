package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/sportedge/sportedge-backend/pkg/auth"
	"github.com/sportedge/sportedge-backend/pkg/auth/session"
	"github.com/sportedge/sportedge-backend/pkg/config"
	"github.com/sportedge/sportedge-backend/pkg/enums"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 10}

func mintTestToken(t *testing.T, issuedAt time.Time, userID uuid.UUID, role enums.UserRole) string {
	t.Helper()
	token, err := auth.MintAccessToken(testJWT, issuedAt, auth.AccessTokenPayload{
		UserID: userID,
		Role:   role,
		JTI:    session.NewAccessID(),
	})
	require.NoError(t, err)
	return token
}

type sessionLookup struct {
	ok  bool
	err error
}

func (s sessionLookup) HasSession(context.Context, string) (bool, error) {
	return s.ok, s.err
}

func TestAuthRejections(t *testing.T) {
	t.Parallel()
	live := mintTestToken(t, time.Now(), uuid.New(), enums.UserRoleUser)
	expired := mintTestToken(t, time.Now().Add(-time.Hour), uuid.New(), enums.UserRoleUser)

	tests := []struct {
		name     string
		header   string
		sessions sessionLookup
		want     int
	}{
		{name: "no header", sessions: sessionLookup{ok: true}, want: http.StatusUnauthorized},
		{name: "garbage token", header: "Bearer invalid", sessions: sessionLookup{ok: true}, want: http.StatusUnauthorized},
		{name: "expired token", header: "Bearer " + expired, sessions: sessionLookup{ok: true}, want: http.StatusUnauthorized},
		{name: "logged out session", header: "Bearer " + live, sessions: sessionLookup{ok: false}, want: http.StatusUnauthorized},
		{name: "session store down", header: "Bearer " + live, sessions: sessionLookup{err: errors.New("redis down")}, want: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			reached := false
			h := Auth(testJWT, tt.sessions, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				reached = true
			}))
			req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.Equal(t, tt.want, rec.Code)
			require.False(t, reached)
		})
	}
}

func TestAuthSeedsCallerIdentity(t *testing.T) {
	t.Parallel()
	userID := uuid.New()
	token := mintTestToken(t, time.Now(), userID, enums.UserRoleAdmin)

	for _, header := range []string{"Bearer " + token, token} {
		var gotUser uuid.UUID
		var gotRole enums.UserRole
		var gotToken string
		h := Auth(testJWT, sessionLookup{ok: true}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotUser, _ = UserUUIDFromContext(r.Context())
			gotRole = RoleFromContext(r.Context())
			gotToken = AccessTokenFromContext(r.Context())
		}))
		req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
		req.Header.Set("Authorization", header)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, userID, gotUser)
		require.Equal(t, enums.UserRoleAdmin, gotRole)
		require.Equal(t, token, gotToken)
	}
}

func TestRequireAdmin(t *testing.T) {
	t.Parallel()
	h := RequireAdmin(nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for role, want := range map[enums.UserRole]int{
		enums.UserRoleUser:  http.StatusForbidden,
		enums.UserRoleAdmin: http.StatusNoContent,
		"":                  http.StatusForbidden,
	} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/brands", nil)
		req = req.WithContext(WithRole(req.Context(), role))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, want, rec.Code, "role %q", role)
	}
}
