package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cardvault/pkg/auth"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func runAuth(t *testing.T, header string) (*httptest.ResponseRecorder, *auth.Principal) {
	t.Helper()
	a := NewAuthenticator(testSecret, "cardvault", zap.NewNop())

	var captured *auth.Principal
	handler := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p, err := auth.PrincipalFromContext(r.Context()); err == nil {
			captured = &p
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cards", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, captured
}

func TestAuthenticator_ValidToken(t *testing.T) {
	token := signToken(t, jwt.MapClaims{
		"sub":   "user-1",
		"iss":   "cardvault",
		"scope": "cards:read cards:write",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	rec, principal := runAuth(t, "Bearer "+token)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, principal)
	assert.Equal(t, "user-1", principal.UserID)
	assert.True(t, principal.HasScope("cards:write"))
}

func TestAuthenticator_MissingHeader(t *testing.T) {
	rec, principal := runAuth(t, "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, principal)
}

func TestAuthenticator_WrongIssuer(t *testing.T) {
	token := signToken(t, jwt.MapClaims{
		"sub": "user-1",
		"iss": "someone-else",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	rec, _ := runAuth(t, "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticator_ExpiredToken(t *testing.T) {
	token := signToken(t, jwt.MapClaims{
		"sub": "user-1",
		"iss": "cardvault",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	rec, _ := runAuth(t, "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticator_MissingSubject(t *testing.T) {
	token := signToken(t, jwt.MapClaims{
		"iss": "cardvault",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	rec, _ := runAuth(t, "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticator_GarbageToken(t *testing.T) {
	rec, _ := runAuth(t, "Bearer not.a.token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func runScoped(t *testing.T, scopes []string) *httptest.ResponseRecorder {
	t.Helper()
	handler := RequireScope("cards:write")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cards", nil)
	principal := auth.Principal{UserID: "user-1", Scopes: scopes}
	req = req.WithContext(auth.WithPrincipal(req.Context(), principal))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRequireScope_Granted(t *testing.T) {
	rec := runScoped(t, []string{"cards:read", "cards:write"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireScope_Missing(t *testing.T) {
	rec := runScoped(t, []string{"cards:read"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireScope_NoPrincipal(t *testing.T) {
	handler := RequireScope("cards:write")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cards", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
