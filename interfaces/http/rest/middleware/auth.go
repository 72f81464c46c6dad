// Package middleware holds the HTTP middleware for the REST surface.
package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"cardvault/pkg/auth"
	"cardvault/pkg/common"
	apperrors "cardvault/pkg/errors"
)

// Authenticator verifies bearer tokens issued by the identity provider and
// places the resulting principal on the request context.
type Authenticator struct {
	secret []byte
	issuer string
	logger *zap.Logger
}

// NewAuthenticator creates a JWT authenticator with an HMAC secret.
func NewAuthenticator(secret, issuer string, logger *zap.Logger) *Authenticator {
	return &Authenticator{
		secret: []byte(secret),
		issuer: issuer,
		logger: logger,
	}
}

// Middleware rejects requests without a valid bearer token.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			common.RespondAppError(w, apperrors.NewUnauthorizedError("missing bearer token"))
			return
		}

		principal, err := a.verify(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			a.logger.Debug("Token rejected", zap.Error(err))
			common.RespondAppError(w, apperrors.NewUnauthorizedError("invalid token"))
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
	})
}

// RequireScope rejects authenticated requests whose token was not granted
// the named scope. Must run after Middleware.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := auth.PrincipalFromContext(r.Context())
			if err != nil {
				common.RespondAppError(w, err)
				return
			}
			if !principal.HasScope(scope) {
				common.RespondAppError(w, apperrors.NewUnauthorizedError(
					fmt.Sprintf("token lacks the %s scope", scope)))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (a *Authenticator) verify(tokenString string) (auth.Principal, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return auth.Principal{}, err
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return auth.Principal{}, apperrors.NewUnauthorizedError("token has no subject")
	}

	var scopes []string
	if raw, ok := claims["scope"].(string); ok && raw != "" {
		scopes = strings.Fields(raw)
	}

	return auth.Principal{UserID: sub, Scopes: scopes}, nil
}
