// mock-provider is a local stand-in for the mobile-money API: it hands
// out tokens, accepts STK-push and B2C requests, and fires a success
// callback at the gateway shortly afterwards.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pesahub/gateway/internal/logging"
)

func main() {
	logging.Init("mock-provider", "info", os.Getenv("APP_ENV"))

	addr := os.Getenv("MOCK_PROVIDER_ADDR")
	if addr == "" {
		addr = ":8081"
	}

	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})

	r.Get("/oauth/v1/generate", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{
			"access_token": fmt.Sprintf("mock-token-%d", rand.Int63()),
			"expires_in":   "3599",
		})
	})

	r.Post("/mpesa/stkpush/v1/processrequest", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Amount      int64  `json:"Amount"`
			PhoneNumber string `json:"PhoneNumber"`
			CallBackURL string `json:"CallBackURL"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		slog.Info("stk push accepted", "phone", req.PhoneNumber, "amount", req.Amount)
		go fireSTKCallback(req.CallBackURL, req.PhoneNumber, req.Amount)

		writeJSON(w, map[string]string{
			"MerchantRequestID":   fmt.Sprintf("mock-%d", rand.Int63()),
			"CheckoutRequestID":   fmt.Sprintf("ws_CO_%d", rand.Int63()),
			"ResponseCode":        "0",
			"ResponseDescription": "Success. Request accepted for processing",
		})
	})

	r.Post("/mpesa/b2c/v1/paymentrequest", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Amount    int64  `json:"Amount"`
			PartyB    string `json:"PartyB"`
			ResultURL string `json:"ResultURL"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		slog.Info("b2c accepted", "phone", req.PartyB, "amount", req.Amount)
		go fireB2CCallback(req.ResultURL, req.PartyB, req.Amount)

		writeJSON(w, map[string]string{
			"ConversationID":           fmt.Sprintf("AG_%d", rand.Int63()),
			"OriginatorConversationID": fmt.Sprintf("mock-%d", rand.Int63()),
			"ResponseCode":             "0",
			"ResponseDescription":      "Accept the service request successfully.",
		})
	})

	slog.Info("mock provider started", "addr", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func fireSTKCallback(callbackURL, phone string, amount int64) {
	time.Sleep(time.Second)

	receipt := fmt.Sprintf("MCK%08d", rand.Intn(100000000))
	payload := map[string]any{
		"Body": map[string]any{
			"stkCallback": map[string]any{
				"MerchantRequestID": fmt.Sprintf("mock-%d", rand.Int63()),
				"CheckoutRequestID": fmt.Sprintf("ws_CO_%d", rand.Int63()),
				"ResultCode":        0,
				"ResultDesc":        "The service request is processed successfully.",
				"CallbackMetadata": map[string]any{
					"Item": []map[string]any{
						{"Name": "Amount", "Value": amount},
						{"Name": "MpesaReceiptNumber", "Value": receipt},
						{"Name": "PhoneNumber", "Value": phone},
					},
				},
			},
		},
	}
	postCallback(callbackURL, payload)
}

func fireB2CCallback(resultURL, phone string, amount int64) {
	time.Sleep(time.Second)

	receipt := fmt.Sprintf("MCK%08d", rand.Intn(100000000))
	payload := map[string]any{
		"Result": map[string]any{
			"ResultType":    0,
			"ResultCode":    0,
			"ResultDesc":    "The service request is processed successfully.",
			"TransactionID": receipt,
			"ResultParameters": map[string]any{
				"ResultParameter": []map[string]any{
					{"Key": "TransactionAmount", "Value": amount},
					{"Key": "TransactionReceipt", "Value": receipt},
					{"Key": "ReceiverPartyPublicName", "Value": phone + " - Mock Payee"},
				},
			},
		},
	}
	postCallback(resultURL, payload)
}

func postCallback(url string, payload map[string]any) {
	body, _ := json.Marshal(payload)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		slog.Error("callback delivery failed", "url", url, "error", err)
		return
	}
	defer resp.Body.Close()
	slog.Info("callback delivered", "url", url, "status", resp.StatusCode)
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
