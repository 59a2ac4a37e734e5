package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/crptomonkeys/monKey-matching/internal/session"
)

type contextKey int

const accountKey contextKey = iota

// accountToken computes the bearer token proving control of an account:
// hex(hmac-sha256(secret, account)).
func accountToken(secret, account string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(account))
	return hex.EncodeToString(mac.Sum(nil))
}

// AuthMiddleware validates the caller's credentials and records the
// proven account in the request context. Requests without credentials
// pass through unauthenticated; the controller rejects them per owner.
func AuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			account := r.Header.Get("X-Account")
			token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

			if account != "" && token != "" {
				expected := accountToken(secret, account)
				if !hmac.Equal([]byte(token), []byte(expected)) {
					writeError(w, http.StatusUnauthorized, session.ErrUnauthorized.Error())
					return
				}
				r = r.WithContext(context.WithValue(r.Context(), accountKey, account))
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ContextAuthorizer implements session.Authorizer from the account proven
// by AuthMiddleware.
type ContextAuthorizer struct{}

// Authorize succeeds only when the proven account matches the named owner.
func (ContextAuthorizer) Authorize(ctx context.Context, owner string) error {
	account, _ := ctx.Value(accountKey).(string)
	if account == "" || account != owner {
		return session.ErrUnauthorized
	}
	return nil
}

// adminOnly guards the admin surface with a static token.
func adminOnly(token string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" || !hmac.Equal([]byte(got), []byte(token)) {
			writeError(w, http.StatusUnauthorized, session.ErrUnauthorized.Error())
			return
		}
		next(w, r)
	}
}
