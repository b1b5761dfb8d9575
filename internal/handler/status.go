package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/pesahub/gateway/internal/domain"
	"github.com/pesahub/gateway/internal/ledger"
	"github.com/pesahub/gateway/internal/logging"
)

type statusService interface {
	QueryStatus(ctx context.Context, key string) (*ledger.Status, error)
}

type StatusHandler struct {
	ledger statusService
}

func NewStatusHandler(ledger statusService) *StatusHandler {
	return &StatusHandler{ledger: ledger}
}

type lastTransactionDTO struct {
	Kind        string    `json:"kind"`
	Amount      int64     `json:"amount"`
	Receipt     *string   `json:"receipt,omitempty"`
	InternalRef string    `json:"internal_ref"`
	Timestamp   time.Time `json:"timestamp"`
}

// Check answers the bot's "did phone X pay yet?" poll.
func (h *StatusHandler) Check(w http.ResponseWriter, r *http.Request) {
	phone := r.URL.Query().Get("phone")
	if phone == "" {
		RespondValidationError(w, []FieldError{{Field: "phone", Message: "required"}})
		return
	}

	status, err := h.ledger.QueryStatus(r.Context(), phone)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			RespondAppError(w, ErrResourceNotFound, map[string]string{"status": "NOT_FOUND"})
			return
		}
		logging.FromContext(r.Context()).Error("status query failed", "phone", phone, "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, map[string]any{
		"status":    "OK",
		"is_recent": status.IsRecent,
		"balance":   status.Balance,
		"last_transaction": lastTransactionDTO{
			Kind:        string(status.LastEntry.Kind),
			Amount:      status.LastEntry.Amount,
			Receipt:     status.LastEntry.Receipt,
			InternalRef: status.LastEntry.InternalRef,
			Timestamp:   status.LastEntry.CreatedAt,
		},
	})
}
