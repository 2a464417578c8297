// Package paystack is the provider gateway adapter. It owns the HTTP
// conversation with the payment processor, the major→minor currency unit
// conversion, and webhook signature verification. Everything above it works
// in major-unit decimals.
package paystack

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

const DefaultBaseURL = "https://api.paystack.co"

var (
	// ErrGatewayUnavailable marks transport failures: the charge may or may
	// not have happened, so callers must not move a transaction to a
	// terminal state on it.
	ErrGatewayUnavailable = fmt.Errorf("payment gateway unavailable")
	// ErrProviderRejected is an explicit negative answer from the provider.
	ErrProviderRejected = fmt.Errorf("payment rejected by provider")
)

type Client struct {
	baseURL   string
	secretKey string
	http      *http.Client
	log       *slog.Logger
}

func NewClient(baseURL, secretKey string, log *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:   baseURL,
		secretKey: secretKey,
		http:      &http.Client{Timeout: 30 * time.Second},
		log:       log,
	}
}

// envelope is the provider's uniform response wrapper.
type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) InitializeTransaction(ctx context.Context, req InitializeRequest) (InitializeResult, error) {
	payload := map[string]any{
		"email":     req.Email,
		"amount":    toMinorUnits(req.Amount),
		"reference": req.Reference,
	}
	if req.CallbackURL != "" {
		payload["callback_url"] = req.CallbackURL
	}
	if len(req.Metadata) > 0 {
		payload["metadata"] = req.Metadata
	}

	env, err := c.do(ctx, http.MethodPost, "/transaction/initialize", payload)
	if err != nil {
		return InitializeResult{}, err
	}

	var data struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return InitializeResult{}, fmt.Errorf("decode initialize response: %w", err)
	}
	return InitializeResult{
		AuthorizationURL:  data.AuthorizationURL,
		AccessCode:        data.AccessCode,
		ProviderReference: data.Reference,
		Raw:               env.Data,
	}, nil
}

func (c *Client) ChargeAuthorization(ctx context.Context, req ChargeRequest) (ChargeOutcome, error) {
	payload := map[string]any{
		"email":              req.Email,
		"amount":             toMinorUnits(req.Amount),
		"reference":          req.Reference,
		"authorization_code": req.AuthorizationCode,
	}
	env, err := c.do(ctx, http.MethodPost, "/transaction/charge_authorization", payload)
	if err != nil {
		return ChargeOutcome{}, err
	}
	return decodeOutcome(env.Data)
}

func (c *Client) VerifyTransaction(ctx context.Context, reference string) (ChargeOutcome, error) {
	env, err := c.do(ctx, http.MethodGet, "/transaction/verify/"+reference, nil)
	if err != nil {
		return ChargeOutcome{}, err
	}
	return decodeOutcome(env.Data)
}

func (c *Client) do(ctx context.Context, method, path string, payload any) (envelope, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return envelope{}, err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return envelope{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("gateway request failed", "path", path, "err", err)
		return envelope{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return envelope{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return envelope{}, fmt.Errorf("%w: malformed response", ErrGatewayUnavailable)
	}
	if !env.Status {
		c.log.Info("provider rejected request", "path", path, "message", env.Message)
		return env, fmt.Errorf("%w: %s", ErrProviderRejected, env.Message)
	}
	return env, nil
}

func decodeOutcome(raw json.RawMessage) (ChargeOutcome, error) {
	var data struct {
		Status        string        `json:"status"`
		Reference     string        `json:"reference"`
		PaidAt        string        `json:"paid_at"`
		Authorization Authorization `json:"authorization"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return ChargeOutcome{}, fmt.Errorf("decode charge outcome: %w", err)
	}
	out := ChargeOutcome{
		Success:       data.Status == "success",
		Status:        data.Status,
		Reference:     data.Reference,
		Authorization: data.Authorization,
		Raw:           raw,
	}
	if t, err := time.Parse(time.RFC3339, data.PaidAt); err == nil {
		out.PaidAt = t
	} else {
		out.PaidAt = time.Now().UTC()
	}
	return out, nil
}

// toMinorUnits converts a major-unit decimal amount into the provider's
// integer minor unit (kobo). This is the only place that conversion happens.
func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// Signature computes the webhook signature for a raw request body:
// hex(HMAC-SHA512(secret, body)).
func Signature(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares in constant time so signature checking leaks
// nothing about the expected value.
func VerifySignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected := Signature(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
