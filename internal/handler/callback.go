package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pesahub/gateway/internal/domain"
	"github.com/pesahub/gateway/internal/ledger"
	"github.com/pesahub/gateway/internal/logging"
)

type reconcileService interface {
	ReconcileCallback(ctx context.Context, event domain.CallbackEvent) (*ledger.ReconcileResult, error)
}

type notifier interface {
	SendAsync(ctx context.Context, chatID, text string)
}

type CallbackHandler struct {
	ledger   reconcileService
	notifier notifier
}

func NewCallbackHandler(ledger reconcileService, notifier notifier) *CallbackHandler {
	return &CallbackHandler{ledger: ledger, notifier: notifier}
}

// Provider payment-notification envelopes. STK pushes (deposits) arrive
// under Body.stkCallback with name/value metadata items; B2C payouts
// (withdrawals) arrive under Result with key/value result parameters.
type callbackEnvelope struct {
	Body *struct {
		StkCallback *stkCallback `json:"stkCallback"`
	} `json:"Body"`
	Result *b2cResult `json:"Result"`
}

type stkCallback struct {
	MerchantRequestID string `json:"MerchantRequestID"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
	ResultCode        int    `json:"ResultCode"`
	ResultDesc        string `json:"ResultDesc"`
	CallbackMetadata  struct {
		Item []namedValue `json:"Item"`
	} `json:"CallbackMetadata"`
}

type b2cResult struct {
	ResultCode       int    `json:"ResultCode"`
	ResultDesc       string `json:"ResultDesc"`
	TransactionID    string `json:"TransactionID"`
	ResultParameters struct {
		ResultParameter []keyedValue `json:"ResultParameter"`
	} `json:"ResultParameters"`
}

type namedValue struct {
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value"`
}

type keyedValue struct {
	Key   string          `json:"Key"`
	Value json.RawMessage `json:"Value"`
}

// Receive handles provider payment notifications. The contract with the
// provider: any structurally parseable payload is acknowledged with a
// 2xx, whatever happens downstream, so the provider does not retry-storm
// us. Only unparseable JSON is rejected outright.
func (h *CallbackHandler) Receive(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	chatID := r.URL.Query().Get("chat_id")

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		log.Error("failed to read callback body", "error", err)
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	var envelope callbackEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		log.Warn("unparseable callback payload", "error", err)
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	event, err := normalizeCallback(envelope)
	if err != nil {
		// Structural-validation failure: no mutation, but still ack so the
		// provider stops redelivering a payload we can never use.
		log.Warn("callback failed validation", "error", err)
		ackProvider(w)
		return
	}
	if event == nil {
		log.Info("callback carried no recognized payment envelope")
		ackProvider(w)
		return
	}

	result, err := h.ledger.ReconcileCallback(r.Context(), *event)
	if err != nil {
		log.Error("callback reconciliation failed", "receipt", event.Receipt, "error", err)
		ackProvider(w)
		return
	}

	if chatID != "" && result.Notification != "" {
		h.notifier.SendAsync(r.Context(), chatID, result.Notification)
	}

	ackProvider(w)
}

func ackProvider(w http.ResponseWriter) {
	RespondJSON(w, http.StatusOK, map[string]any{
		"ResultCode": 0,
		"ResultDesc": "Accepted",
	})
}

// normalizeCallback turns either provider envelope into the typed event
// the reconciliation engine consumes. Returns (nil, nil) when the
// payload is some other provider notification we do not handle.
func normalizeCallback(envelope callbackEnvelope) (*domain.CallbackEvent, error) {
	if envelope.Body != nil && envelope.Body.StkCallback != nil {
		return normalizeSTK(envelope.Body.StkCallback)
	}
	if envelope.Result != nil {
		return normalizeB2C(envelope.Result)
	}
	return nil, nil
}

func normalizeSTK(cb *stkCallback) (*domain.CallbackEvent, error) {
	event := &domain.CallbackEvent{
		Kind:       domain.EntryKindDeposit,
		ResultCode: cb.ResultCode,
		ResultDesc: cb.ResultDesc,
	}
	if cb.ResultCode != domain.ResultCodeSuccess {
		return event, nil
	}

	items := make(map[string]json.RawMessage, len(cb.CallbackMetadata.Item))
	for _, item := range cb.CallbackMetadata.Item {
		items[item.Name] = item.Value
	}

	phone, err := stringValue(items["PhoneNumber"])
	if err != nil {
		return nil, fmt.Errorf("normalizeSTK: PhoneNumber: %w", domain.ErrValidation)
	}
	amount, err := amountValue(items["Amount"])
	if err != nil {
		return nil, fmt.Errorf("normalizeSTK: Amount: %w", domain.ErrValidation)
	}
	receipt, err := stringValue(items["MpesaReceiptNumber"])
	if err != nil {
		return nil, fmt.Errorf("normalizeSTK: MpesaReceiptNumber: %w", domain.ErrValidation)
	}

	event.Phone = phone
	event.Amount = amount
	event.Receipt = receipt
	return event, nil
}

func normalizeB2C(res *b2cResult) (*domain.CallbackEvent, error) {
	event := &domain.CallbackEvent{
		Kind:       domain.EntryKindWithdraw,
		ResultCode: res.ResultCode,
		ResultDesc: res.ResultDesc,
	}
	if res.ResultCode != domain.ResultCodeSuccess {
		return event, nil
	}

	params := make(map[string]json.RawMessage, len(res.ResultParameters.ResultParameter))
	for _, p := range res.ResultParameters.ResultParameter {
		params[p.Key] = p.Value
	}

	amount, err := amountValue(params["TransactionAmount"])
	if err != nil {
		return nil, fmt.Errorf("normalizeB2C: TransactionAmount: %w", domain.ErrValidation)
	}
	// "254700000001 - Jane Doe"
	payeeName, err := stringValue(params["ReceiverPartyPublicName"])
	if err != nil {
		return nil, fmt.Errorf("normalizeB2C: ReceiverPartyPublicName: %w", domain.ErrValidation)
	}
	phone, _, _ := strings.Cut(payeeName, " - ")
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, fmt.Errorf("normalizeB2C: payee phone: %w", domain.ErrValidation)
	}
	if res.TransactionID == "" {
		return nil, fmt.Errorf("normalizeB2C: TransactionID: %w", domain.ErrValidation)
	}

	event.Phone = phone
	event.Amount = amount
	event.Receipt = res.TransactionID
	return event, nil
}

// stringValue accepts both string and numeric metadata values; the
// provider is inconsistent about which it sends for phone numbers.
func stringValue(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("missing value")
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return "", fmt.Errorf("empty value")
		}
		return s, nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("neither string nor number")
	}
	return n.String(), nil
}

// amountValue parses an amount and insists it is a whole number of
// shillings; silently truncating fractional amounts would corrupt the
// ledger if the provider ever changes units.
func amountValue(raw json.RawMessage) (int64, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("missing value")
	}

	var d decimal.Decimal
	if err := json.Unmarshal(raw, &d); err != nil {
		return 0, fmt.Errorf("not a number: %w", err)
	}
	if !d.IsInteger() {
		return 0, fmt.Errorf("fractional amount %s", d)
	}
	if !d.IsPositive() {
		return 0, fmt.Errorf("non-positive amount %s", d)
	}
	return d.IntPart(), nil
}
