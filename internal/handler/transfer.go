package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pesahub/gateway/internal/ledger"
	"github.com/pesahub/gateway/internal/logging"
)

type transferService interface {
	Transfer(ctx context.Context, senderKey, receiverKey string, amount int64) (*ledger.TransferResult, error)
}

type TransferHandler struct {
	ledger transferService
}

func NewTransferHandler(ledger transferService) *TransferHandler {
	return &TransferHandler{ledger: ledger}
}

type transferRequest struct {
	SenderPhone   string `json:"sender_phone" validate:"required,numeric,min=10,max=13"`
	ReceiverPhone string `json:"receiver_phone" validate:"required,min=4,max=20"`
	Amount        int64  `json:"amount" validate:"required,gt=0"`
}

func (h *TransferHandler) Internal(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := validateStruct(req); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	result, err := h.ledger.Transfer(r.Context(), req.SenderPhone, req.ReceiverPhone, req.Amount)
	if err != nil {
		log.Warn("transfer failed",
			"sender", req.SenderPhone,
			"receiver", req.ReceiverPhone,
			"amount", req.Amount,
			"error", err,
		)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, map[string]any{
		"status":        "SUCCESS",
		"fee":           result.Fee,
		"new_balance":   result.NewBalance,
		"reference":     result.Reference,
		"receiver_name": result.ReceiverName,
	})
}
