package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/pesahub/gateway/internal/domain"
)

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrInvalidHandshake = &AppError{http.StatusForbidden, "INVALID_HANDSHAKE", "Shared secret missing or wrong"}
	ErrInvalidRequest   = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound = &AppError{http.StatusNotFound, "NOT_FOUND", "Resource not found"}
	ErrInternalError    = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}

	ErrInsufficientFunds = &AppError{http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS", "Insufficient funds"}
	ErrSenderNotFound    = &AppError{http.StatusUnprocessableEntity, "SENDER_NOT_FOUND", "Sender account not found"}
	ErrReceiverNotFound  = &AppError{http.StatusUnprocessableEntity, "RECEIVER_NOT_FOUND", "Receiver account not found"}
	ErrSelfTransfer      = &AppError{http.StatusUnprocessableEntity, "SELF_TRANSFER_NOT_ALLOWED", "Cannot transfer to the same account"}
	ErrInvalidAmount     = &AppError{http.StatusBadRequest, "INVALID_AMOUNT", "Amount must be greater than zero"}
	ErrConflictRetry     = &AppError{http.StatusConflict, "CONFLICT", "Resource was modified concurrently, please retry"}
	ErrProviderFailed    = &AppError{http.StatusBadGateway, "PROVIDER_UNAVAILABLE", "Payment provider request failed"}
)

// RespondDomainError maps ledger-core errors onto the stable
// machine-readable error surface. Insufficient-funds rejections carry
// the computed figures so the bot can tell the user what was short.
func RespondDomainError(w http.ResponseWriter, err error) {
	var insufficient *domain.InsufficientFundsError
	if errors.As(err, &insufficient) {
		RespondAppError(w, ErrInsufficientFunds, map[string]int64{
			"required": insufficient.Required,
			"fee":      insufficient.Fee,
			"balance":  insufficient.Balance,
		})
		return
	}

	var appErr *AppError
	switch {
	case errors.Is(err, domain.ErrSenderNotFound):
		appErr = ErrSenderNotFound
	case errors.Is(err, domain.ErrReceiverNotFound):
		appErr = ErrReceiverNotFound
	case errors.Is(err, domain.ErrNotFound):
		appErr = ErrResourceNotFound
	case errors.Is(err, domain.ErrSelfTransfer):
		appErr = ErrSelfTransfer
	case errors.Is(err, domain.ErrInvalidAmount):
		appErr = ErrInvalidAmount
	case errors.Is(err, domain.ErrInsufficientFunds):
		appErr = ErrInsufficientFunds
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrVersionConflict):
		appErr = ErrConflictRetry
	case errors.Is(err, domain.ErrUpstream):
		appErr = ErrProviderFailed
	case errors.Is(err, domain.ErrValidation):
		appErr = ErrValidationFailed
	default:
		slog.Error("unhandled domain error", "error", err)
		appErr = ErrInternalError
	}

	RespondAppError(w, appErr, nil)
}
