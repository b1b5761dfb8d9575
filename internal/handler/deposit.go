package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pesahub/gateway/internal/logging"
	"github.com/pesahub/gateway/internal/service"
)

type providerClient interface {
	STKPush(ctx context.Context, phone string, amount int64, reference string) (json.RawMessage, error)
	B2C(ctx context.Context, phone string, amount int64) (json.RawMessage, error)
}

type DepositHandler struct {
	provider providerClient
}

func NewDepositHandler(provider providerClient) *DepositHandler {
	return &DepositHandler{provider: provider}
}

type depositRequest struct {
	Phone  string `json:"phone" validate:"required,numeric,min=10,max=13"`
	Amount int64  `json:"amount" validate:"required,gt=0"`
	ChatID string `json:"chat_id"`
}

// Prompt initiates an STK-push deposit. The response only confirms the
// prompt was sent; the money lands (or not) via the provider callback.
func (h *DepositHandler) Prompt(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := validateStruct(req); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	reference := service.SanitizeReference(req.ChatID)
	log.Info("initiating deposit prompt", "phone", req.Phone, "amount", req.Amount, "reference", reference)

	providerResp, err := h.provider.STKPush(r.Context(), req.Phone, req.Amount, reference)
	if err != nil {
		log.Error("deposit prompt failed", "phone", req.Phone, "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, map[string]any{
		"status":   "PENDING",
		"provider": providerResp,
	})
}
