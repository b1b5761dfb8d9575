package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pesahub/gateway/internal/domain"
	"github.com/pesahub/gateway/internal/logging"
)

// The provider truncates account references and rejects exotic
// characters, so references are sanitized to this alphabet and length.
const referenceMaxLen = 12

const fallbackReference = "PesaHub"

type DarajaConfig struct {
	BaseURL            string
	Shortcode          string
	Passkey            string
	ConsumerKey        string
	ConsumerSecret     string
	InitiatorName      string
	SecurityCredential string
	CallbackURL        string
}

// DarajaClient initiates STK-push deposits and B2C disbursements against
// the mobile-money provider. Initiation is best-effort; the provider
// callback is the system of record for whether money actually moved.
type DarajaClient struct {
	cfg        DarajaConfig
	httpClient *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewDarajaClient(cfg DarajaConfig) *DarajaClient {
	return &DarajaClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// SanitizeReference turns a chat identifier into a provider-safe account
// reference: the part before any "@", restricted to [A-Za-z0-9_], capped
// at 12 characters, with a constant fallback when nothing survives.
func SanitizeReference(chatID string) string {
	local, _, _ := strings.Cut(chatID, "@")

	var b strings.Builder
	for _, r := range local {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' {
			b.WriteRune(r)
		}
		if b.Len() == referenceMaxLen {
			break
		}
	}
	if b.Len() == 0 {
		return fallbackReference
	}
	return b.String()
}

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

// STKPush asks the provider to prompt the payer's phone for a deposit.
// The outcome arrives later on the callback endpoint.
func (c *DarajaClient) STKPush(ctx context.Context, phone string, amount int64, reference string) (json.RawMessage, error) {
	timestamp := time.Now().UTC().Format("20060102150405")
	password := base64.StdEncoding.EncodeToString(
		[]byte(c.cfg.Shortcode + c.cfg.Passkey + timestamp),
	)

	req := stkPushRequest{
		BusinessShortCode: c.cfg.Shortcode,
		Password:          password,
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            amount,
		PartyA:            phone,
		PartyB:            c.cfg.Shortcode,
		PhoneNumber:       phone,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  reference,
		TransactionDesc:   fmt.Sprintf("Wallet deposit for %s", reference),
	}

	resp, err := c.postJSON(ctx, "/mpesa/stkpush/v1/processrequest", req)
	if err != nil {
		return nil, fmt.Errorf("STKPush: %w", err)
	}
	return resp, nil
}

type b2cRequest struct {
	InitiatorName      string `json:"InitiatorName"`
	SecurityCredential string `json:"SecurityCredential"`
	CommandID          string `json:"CommandID"`
	Amount             int64  `json:"Amount"`
	PartyA             string `json:"PartyA"`
	PartyB             string `json:"PartyB"`
	Remarks            string `json:"Remarks"`
	QueueTimeOutURL    string `json:"QueueTimeOutURL"`
	ResultURL          string `json:"ResultURL"`
	Occasion           string `json:"Occasion"`
}

// B2C asks the provider to disburse funds to the payee's phone.
func (c *DarajaClient) B2C(ctx context.Context, phone string, amount int64) (json.RawMessage, error) {
	req := b2cRequest{
		InitiatorName:      c.cfg.InitiatorName,
		SecurityCredential: c.cfg.SecurityCredential,
		CommandID:          "BusinessPayment",
		Amount:             amount,
		PartyA:             c.cfg.Shortcode,
		PartyB:             phone,
		Remarks:            "Wallet payout",
		QueueTimeOutURL:    c.cfg.CallbackURL,
		ResultURL:          c.cfg.CallbackURL,
		Occasion:           "Withdrawal",
	}

	resp, err := c.postJSON(ctx, "/mpesa/b2c/v1/paymentrequest", req)
	if err != nil {
		return nil, fmt.Errorf("B2C: %w", err)
	}
	return resp, nil
}

// postJSON sends an authenticated request, retrying once with a short
// backoff on network failure or a 5xx, per the provider's guidance for
// transient errors.
func (c *DarajaClient) postJSON(ctx context.Context, path string, payload any) (json.RawMessage, error) {
	log := logging.FromContext(ctx)

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("postJSON: marshal: %w", err)
	}

	var lastErr error
	for attempt := range 2 {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("postJSON: %w", ctx.Err())
			case <-time.After(500 * time.Millisecond):
			}
		}

		token, err := c.bearerToken(ctx)
		if err != nil {
			lastErr = err
			continue
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("postJSON: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%w: %w", domain.ErrUpstream, err)
			log.Warn("provider request failed", "path", path, "attempt", attempt+1, "error", err)
			continue
		}

		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		resp.Body.Close()

		log.Info("provider response",
			"path", path,
			"status", resp.StatusCode,
			"duration_ms", time.Since(start).Milliseconds(),
		)

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("%w: status %d: %s", domain.ErrUpstream, resp.StatusCode, respBody)
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("postJSON: %w: status %d: %s", domain.ErrUpstream, resp.StatusCode, respBody)
		}
		if readErr != nil {
			return nil, fmt.Errorf("postJSON: read body: %w", readErr)
		}
		return respBody, nil
	}

	return nil, fmt.Errorf("postJSON: %w", lastErr)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// bearerToken returns a cached provider credential, fetching a fresh one
// when the cached copy is within a minute of expiry.
func (c *DarajaClient) bearerToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry.Add(-time.Minute)) {
		return c.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.cfg.BaseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", fmt.Errorf("bearerToken: build request: %w", err)
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("bearerToken: %w: %w", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("bearerToken: %w: status %d: %s", domain.ErrUpstream, resp.StatusCode, body)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("bearerToken: decode: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("bearerToken: %w: empty token", domain.ErrUpstream)
	}

	ttl := time.Hour
	if secs, err := time.ParseDuration(tr.ExpiresIn + "s"); err == nil && secs > 0 {
		ttl = secs
	}

	c.token = tr.AccessToken
	c.tokenExpiry = time.Now().Add(ttl)
	return c.token, nil
}
