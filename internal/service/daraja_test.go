package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesahub/gateway/internal/domain"
)

func TestSanitizeReference(t *testing.T) {
	tests := []struct {
		name   string
		chatID string
		want   string
	}{
		{"plain id", "254700000001", "254700000001"},
		{"jid with domain", "254700000001@s.whatsapp.net", "254700000001"},
		{"strips punctuation", "group-42!x", "group42x"},
		{"caps at twelve chars", "averyverylongchatidentifier", "averyverylon"},
		{"empty falls back", "", "PesaHub"},
		{"only punctuation falls back", "---@host", "PesaHub"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeReference(tt.chatID))
		})
	}
}

// newProviderStub runs an httptest server that issues tokens and records
// payment-initiation requests.
func newProviderStub(t *testing.T, handle http.HandlerFunc) (*httptest.Server, *DarajaClient) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "key" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{
			"access_token": "test-token",
			"expires_in":   "3599",
		})
	})
	mux.HandleFunc("/mpesa/", handle)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := NewDarajaClient(DarajaConfig{
		BaseURL:            srv.URL,
		Shortcode:          "174379",
		Passkey:            "testpasskey",
		ConsumerKey:        "key",
		ConsumerSecret:     "secret",
		InitiatorName:      "testapi",
		SecurityCredential: "credential",
		CallbackURL:        "https://gateway.test/api/callback",
	})
	return srv, client
}

func TestSTKPush(t *testing.T) {
	var got stkPushRequest
	var auth string
	_, client := newProviderStub(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]string{
			"ResponseCode":        "0",
			"CheckoutRequestID":   "ws_CO_1",
			"ResponseDescription": "Success",
		})
	})

	raw, err := client.STKPush(context.Background(), "254700000001", 500, "chat42")
	require.NoError(t, err)
	assert.Contains(t, string(raw), "ws_CO_1")

	assert.Equal(t, "Bearer test-token", auth)
	assert.Equal(t, "174379", got.BusinessShortCode)
	assert.Equal(t, "CustomerPayBillOnline", got.TransactionType)
	assert.Equal(t, int64(500), got.Amount)
	assert.Equal(t, "254700000001", got.PhoneNumber)
	assert.Equal(t, "chat42", got.AccountReference)
	assert.Equal(t, "https://gateway.test/api/callback", got.CallBackURL)

	// Password is base64(shortcode + passkey + timestamp).
	decoded, err := base64.StdEncoding.DecodeString(got.Password)
	require.NoError(t, err)
	assert.Equal(t, "174379testpasskey"+got.Timestamp, string(decoded))
}

func TestB2C(t *testing.T) {
	var got b2cRequest
	_, client := newProviderStub(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]string{"ResponseCode": "0"})
	})

	_, err := client.B2C(context.Background(), "254700000001", 400)
	require.NoError(t, err)

	assert.Equal(t, "BusinessPayment", got.CommandID)
	assert.Equal(t, "testapi", got.InitiatorName)
	assert.Equal(t, "174379", got.PartyA)
	assert.Equal(t, "254700000001", got.PartyB)
	assert.Equal(t, int64(400), got.Amount)
}

func TestPostJSON_RetriesOnServerError(t *testing.T) {
	var calls atomic.Int32
	_, client := newProviderStub(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"ResponseCode": "0"})
	})

	_, err := client.STKPush(context.Background(), "254700000001", 100, "ref")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestPostJSON_GivesUpAfterRetry(t *testing.T) {
	var calls atomic.Int32
	_, client := newProviderStub(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.STKPush(context.Background(), "254700000001", 100, "ref")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstream)
	assert.Equal(t, int32(2), calls.Load())
}

func TestPostJSON_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	_, client := newProviderStub(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	})

	_, err := client.STKPush(context.Background(), "254700000001", 100, "ref")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstream)
	assert.Equal(t, int32(1), calls.Load())
}

func TestBearerToken_Cached(t *testing.T) {
	var tokenCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		json.NewEncoder(w).Encode(map[string]string{
			"access_token": "tok",
			"expires_in":   "3599",
		})
	})
	mux.HandleFunc("/mpesa/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"ResponseCode": "0"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := NewDarajaClient(DarajaConfig{
		BaseURL:        srv.URL,
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
	})

	for range 3 {
		_, err := client.STKPush(context.Background(), "254700000001", 100, "ref")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), tokenCalls.Load())
}
