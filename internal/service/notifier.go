package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pesahub/gateway/internal/domain"
	"github.com/pesahub/gateway/internal/logging"
)

// SecretHeader authenticates both directions of the gateway-bot link:
// the bot sends it on inbound requests, the notifier sets it on
// outbound pushes.
const SecretHeader = "X-Pesahub-Secret"

// Notifier pushes human-readable messages to the messaging bot's
// webhook. Delivery is best-effort: a failed push is logged and dropped,
// it never affects the ledger.
type Notifier struct {
	webhookURL string
	secret     string
	httpClient *http.Client
}

func NewNotifier(webhookURL, secret string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		secret:     secret,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

type notifyPayload struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

func (n *Notifier) Send(ctx context.Context, chatID, text string) error {
	body, err := json.Marshal(notifyPayload{ChatID: chatID, Text: text})
	if err != nil {
		return fmt.Errorf("Send: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("Send: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SecretHeader, n.secret)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("Send: %w: %w", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("Send: %w: status %d", domain.ErrUpstream, resp.StatusCode)
	}

	logging.FromContext(ctx).Info("notification delivered", "chat_id", chatID)
	return nil
}

// SendAsync fires the notification on a detached context so it outlives
// the request that triggered it. Fire-and-forget per the bot contract.
func (n *Notifier) SendAsync(ctx context.Context, chatID, text string) {
	log := logging.FromContext(ctx)
	detached := logging.WithLogger(context.WithoutCancel(ctx), log)

	go func() {
		sendCtx, cancel := context.WithTimeout(detached, 10*time.Second)
		defer cancel()
		if err := n.Send(sendCtx, chatID, text); err != nil {
			log.Error("notification delivery failed", "chat_id", chatID, "error", err)
		}
	}()
}
