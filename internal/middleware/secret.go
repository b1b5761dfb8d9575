package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/pesahub/gateway/internal/handler"
	"github.com/pesahub/gateway/internal/logging"
	"github.com/pesahub/gateway/internal/service"
)

// SharedSecret guards the bot-facing routes. The provider callback route
// stays outside this: the provider cannot send custom headers, and
// callbacks must always be acknowledged.
func SharedSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(service.SecretHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				logging.FromContext(r.Context()).Warn("handshake rejected", "path", r.URL.Path)
				handler.RespondAppError(w, handler.ErrInvalidHandshake, nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
