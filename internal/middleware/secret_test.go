package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pesahub/gateway/internal/service"
)

func TestSharedSecret(t *testing.T) {
	var reached bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusNoContent)
	})
	guarded := SharedSecret("s3cret")(next)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantNext   bool
	}{
		{"correct secret", "s3cret", http.StatusNoContent, true},
		{"missing secret", "", http.StatusForbidden, false},
		{"wrong secret", "nope", http.StatusForbidden, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reached = false
			req := httptest.NewRequest(http.MethodPost, "/api/transfer/internal", nil)
			if tt.header != "" {
				req.Header.Set(service.SecretHeader, tt.header)
			}
			rec := httptest.NewRecorder()

			guarded.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantNext, reached)
			if !tt.wantNext {
				assert.Contains(t, rec.Body.String(), "INVALID_HANDSHAKE")
			}
		})
	}
}
