package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesahub/gateway/internal/domain"
	"github.com/pesahub/gateway/internal/ledger"
)

type stubReconciler struct {
	mu     sync.Mutex
	events []domain.CallbackEvent
	result *ledger.ReconcileResult
	err    error
}

func (s *stubReconciler) ReconcileCallback(_ context.Context, event domain.CallbackEvent) (*ledger.ReconcileResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type stubNotifier struct {
	mu    sync.Mutex
	sends []string
}

func (s *stubNotifier) SendAsync(_ context.Context, chatID, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends = append(s.sends, chatID+": "+text)
}

func postCallback(t *testing.T, h *CallbackHandler, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.Receive(rec, req)
	return rec
}

const stkSuccessPayload = `{
	"Body": {
		"stkCallback": {
			"MerchantRequestID": "29115-34620561-1",
			"CheckoutRequestID": "ws_CO_191220191020363925",
			"ResultCode": 0,
			"ResultDesc": "The service request is processed successfully.",
			"CallbackMetadata": {
				"Item": [
					{"Name": "Amount", "Value": 500},
					{"Name": "MpesaReceiptNumber", "Value": "NLJ7RT61SV"},
					{"Name": "TransactionDate", "Value": 20191219102115},
					{"Name": "PhoneNumber", "Value": 254700000001}
				]
			}
		}
	}
}`

func TestCallbackReceive_STKSuccess(t *testing.T) {
	rec := &stubReconciler{result: &ledger.ReconcileResult{
		LedgerUpdated: true,
		NewBalance:    500,
		Notification:  "DEPOSIT CONFIRMED",
	}}
	not := &stubNotifier{}
	h := NewCallbackHandler(rec, not)

	resp := postCallback(t, h, "/api/callback?chat_id=chat-77", stkSuccessPayload)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"ResultDesc":"Accepted"`)

	require.Len(t, rec.events, 1)
	event := rec.events[0]
	assert.Equal(t, "254700000001", event.Phone)
	assert.Equal(t, domain.EntryKindDeposit, event.Kind)
	assert.Equal(t, int64(500), event.Amount)
	assert.Equal(t, "NLJ7RT61SV", event.Receipt)
	assert.Equal(t, domain.ResultCodeSuccess, event.ResultCode)

	require.Len(t, not.sends, 1)
	assert.Equal(t, "chat-77: DEPOSIT CONFIRMED", not.sends[0])
}

func TestCallbackReceive_NoChatIDSkipsNotification(t *testing.T) {
	rec := &stubReconciler{result: &ledger.ReconcileResult{
		LedgerUpdated: true,
		Notification:  "DEPOSIT CONFIRMED",
	}}
	not := &stubNotifier{}
	h := NewCallbackHandler(rec, not)

	resp := postCallback(t, h, "/api/callback", stkSuccessPayload)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Empty(t, not.sends)
}

func TestCallbackReceive_ReplayWithEmptyNotification(t *testing.T) {
	// A replayed receipt reconciles to a no-op with no message; the
	// handler must not ping the chat again.
	rec := &stubReconciler{result: &ledger.ReconcileResult{NewBalance: 500}}
	not := &stubNotifier{}
	h := NewCallbackHandler(rec, not)

	resp := postCallback(t, h, "/api/callback?chat_id=chat-77", stkSuccessPayload)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Empty(t, not.sends)
}

func TestCallbackReceive_STKFailureCode(t *testing.T) {
	rec := &stubReconciler{result: &ledger.ReconcileResult{
		Notification: "Payment cancelled on the phone.",
	}}
	not := &stubNotifier{}
	h := NewCallbackHandler(rec, not)

	payload := `{"Body":{"stkCallback":{"ResultCode":1032,"ResultDesc":"Request cancelled by user"}}}`
	resp := postCallback(t, h, "/api/callback?chat_id=chat-9", payload)

	assert.Equal(t, http.StatusOK, resp.Code)
	require.Len(t, rec.events, 1)
	assert.Equal(t, domain.ResultCodeCancelledByUser, rec.events[0].ResultCode)
	require.Len(t, not.sends, 1)
}

func TestCallbackReceive_B2CSuccess(t *testing.T) {
	rec := &stubReconciler{result: &ledger.ReconcileResult{LedgerUpdated: true}}
	h := NewCallbackHandler(rec, &stubNotifier{})

	payload := `{
		"Result": {
			"ResultCode": 0,
			"ResultDesc": "The service request is processed successfully.",
			"TransactionID": "NLJ41HAY6Q",
			"ResultParameters": {
				"ResultParameter": [
					{"Key": "TransactionAmount", "Value": 400},
					{"Key": "ReceiverPartyPublicName", "Value": "254700000001 - Jane Doe"},
					{"Key": "B2CChargesPaidAccountAvailableFunds", "Value": 0}
				]
			}
		}
	}`
	resp := postCallback(t, h, "/api/callback", payload)

	assert.Equal(t, http.StatusOK, resp.Code)
	require.Len(t, rec.events, 1)
	event := rec.events[0]
	assert.Equal(t, "254700000001", event.Phone)
	assert.Equal(t, domain.EntryKindWithdraw, event.Kind)
	assert.Equal(t, int64(400), event.Amount)
	assert.Equal(t, "NLJ41HAY6Q", event.Receipt)
}

func TestCallbackReceive_UnparseableJSON(t *testing.T) {
	rec := &stubReconciler{}
	h := NewCallbackHandler(rec, &stubNotifier{})

	resp := postCallback(t, h, "/api/callback", `{"Body": not-json`)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Empty(t, rec.events)
}

func TestCallbackReceive_MissingMetadataAckedWithoutReconcile(t *testing.T) {
	rec := &stubReconciler{}
	h := NewCallbackHandler(rec, &stubNotifier{})

	// Success code but no receipt or amount: unusable, acked, never applied.
	payload := `{"Body":{"stkCallback":{"ResultCode":0,"ResultDesc":"ok","CallbackMetadata":{"Item":[]}}}}`
	resp := postCallback(t, h, "/api/callback", payload)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Empty(t, rec.events)
}

func TestCallbackReceive_UnrecognizedEnvelopeAcked(t *testing.T) {
	rec := &stubReconciler{}
	h := NewCallbackHandler(rec, &stubNotifier{})

	resp := postCallback(t, h, "/api/callback", `{"some":"other notification"}`)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Empty(t, rec.events)
}

func TestCallbackReceive_ReconcileErrorStillAcks(t *testing.T) {
	rec := &stubReconciler{err: assert.AnError}
	not := &stubNotifier{}
	h := NewCallbackHandler(rec, not)

	resp := postCallback(t, h, "/api/callback?chat_id=chat-1", stkSuccessPayload)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Empty(t, not.sends)
}

func TestNormalizeSTK_FractionalAmountRejected(t *testing.T) {
	cb := &stkCallback{ResultCode: 0}
	cb.CallbackMetadata.Item = []namedValue{
		{Name: "Amount", Value: []byte(`500.50`)},
		{Name: "MpesaReceiptNumber", Value: []byte(`"NLJ7RT61SV"`)},
		{Name: "PhoneNumber", Value: []byte(`"254700000001"`)},
	}

	_, err := normalizeSTK(cb)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestNormalizeSTK_StringAmountAccepted(t *testing.T) {
	cb := &stkCallback{ResultCode: 0}
	cb.CallbackMetadata.Item = []namedValue{
		{Name: "Amount", Value: []byte(`"750"`)},
		{Name: "MpesaReceiptNumber", Value: []byte(`"NLJ7RT61SV"`)},
		{Name: "PhoneNumber", Value: []byte(`254700000001`)},
	}

	event, err := normalizeSTK(cb)
	require.NoError(t, err)
	assert.Equal(t, int64(750), event.Amount)
	assert.Equal(t, "254700000001", event.Phone)
}
