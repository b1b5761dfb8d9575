package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pesahub/gateway/internal/logging"
)

type fundsVerifier interface {
	VerifyFunds(ctx context.Context, phone string, amount int64) error
}

type WithdrawHandler struct {
	ledger   fundsVerifier
	provider providerClient
}

func NewWithdrawHandler(ledger fundsVerifier, provider providerClient) *WithdrawHandler {
	return &WithdrawHandler{ledger: ledger, provider: provider}
}

type withdrawRequest struct {
	Phone  string `json:"phone" validate:"required,numeric,min=10,max=13"`
	Amount int64  `json:"amount" validate:"required,gt=0"`
}

// Disburse initiates a B2C payout. The wallet must already hold the
// amount; the ledger is only debited when the provider confirms the
// payout on the callback path.
func (h *WithdrawHandler) Disburse(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := validateStruct(req); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	if err := h.ledger.VerifyFunds(r.Context(), req.Phone, req.Amount); err != nil {
		log.Warn("withdrawal rejected", "phone", req.Phone, "amount", req.Amount, "error", err)
		RespondDomainError(w, err)
		return
	}

	providerResp, err := h.provider.B2C(r.Context(), req.Phone, req.Amount)
	if err != nil {
		log.Error("disbursement request failed", "phone", req.Phone, "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, map[string]any{
		"status":   "PENDING",
		"provider": providerResp,
	})
}
