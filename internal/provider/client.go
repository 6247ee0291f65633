package provider

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/safetrade/safetrade-backend/pkg/config"
	pkgerrors "github.com/safetrade/safetrade-backend/pkg/errors"
)

const (
	defaultBaseURL             = "https://api.bitrefill.com/v2"
	defaultTimeout             = 30 * time.Second
	requestBodyReadLimit int64 = 1024

	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var errAPIKeyRequired = errors.New("provider api key is required")

// Client places gift card orders with the fulfillment provider. Provider
// calls sit outside our transactions and can take seconds to fail. A call
// either definitively succeeds with an artifact or is treated as failed;
// ambiguous outcomes (timeouts) count as failures and are never retried,
// since a retry could double-purchase.
type Client interface {
	Purchase(ctx context.Context, sku string, quantity int) (*PurchaseResult, error)
}

// PurchaseResult is the artifact returned by a successful provider order.
type PurchaseResult struct {
	OrderID      string `json:"orderId"`
	ProductSKU   string `json:"productSku"`
	Quantity     int    `json:"quantity"`
	GiftCardCode string `json:"giftCardCode"`
	Status       string `json:"status"`
}

// HTTPClient talks to the real provider API.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// Option configures optional client behavior.
type Option func(*HTTPClient)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *HTTPClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the configured provider base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *HTTPClient) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// NewHTTPClient builds the provider client given an API key.
func NewHTTPClient(apiKey string, opts ...Option) (*HTTPClient, error) {
	trimmedKey := strings.TrimSpace(apiKey)
	if trimmedKey == "" {
		return nil, errAPIKeyRequired
	}

	client := &HTTPClient{
		apiKey:     trimmedKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if client.baseURL == "" {
		client.baseURL = defaultBaseURL
	}
	return client, nil
}

// New picks the sandbox or HTTP client based on configuration.
func New(cfg config.ProviderConfig) (Client, error) {
	if cfg.Sandbox {
		return NewSandboxClient(), nil
	}
	opts := []Option{WithBaseURL(cfg.BaseURL)}
	if cfg.Timeout > 0 {
		opts = append(opts, WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}
	return NewHTTPClient(cfg.APIKey, opts...)
}

type purchaseRequest struct {
	ProductSKU string `json:"productSku"`
	Quantity   int    `json:"quantity"`
}

// Purchase places one order with the provider.
func (c *HTTPClient) Purchase(ctx context.Context, sku string, quantity int) (*PurchaseResult, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "provider client not configured")
	}
	if strings.TrimSpace(sku) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product sku is required")
	}
	if quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	payload, err := json.Marshal(purchaseRequest{ProductSKU: sku, Quantity: quantity})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProvider, err, "marshal purchase request")
	}

	url := strings.TrimRight(c.baseURL, "/") + "/orders"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProvider, err, "build purchase request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProvider, err, "execute purchase request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, requestBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeProvider,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
			"provider purchase failed")
	}

	var result PurchaseResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProvider, err, "decode purchase response")
	}
	if result.GiftCardCode == "" {
		return nil, pkgerrors.New(pkgerrors.CodeProvider, "provider returned no gift card code")
	}
	return &result, nil
}

// SandboxClient fulfills orders locally with generated codes. Used in dev and
// tests where no provider credentials exist.
type SandboxClient struct{}

// NewSandboxClient returns a provider client that never leaves the process.
func NewSandboxClient() *SandboxClient {
	return &SandboxClient{}
}

// Purchase generates a mock gift card code in the provider's format.
func (c *SandboxClient) Purchase(ctx context.Context, sku string, quantity int) (*PurchaseResult, error) {
	if strings.TrimSpace(sku) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product sku is required")
	}
	if quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if err := ctx.Err(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProvider, err, "purchase canceled")
	}

	code, err := generateCode()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProvider, err, "generate sandbox code")
	}
	return &PurchaseResult{
		OrderID:      "BF-" + uuid.NewString(),
		ProductSKU:   sku,
		Quantity:     quantity,
		GiftCardCode: code,
		Status:       "COMPLETED",
	}, nil
}

// generateCode emits a XXXX-XXXX-XXXX-XXXX code from the provider's alphabet.
func generateCode() (string, error) {
	var sb strings.Builder
	for group := 0; group < 4; group++ {
		if group > 0 {
			sb.WriteByte('-')
		}
		for i := 0; i < 4; i++ {
			n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
			if err != nil {
				return "", err
			}
			sb.WriteByte(codeAlphabet[n.Int64()])
		}
	}
	return sb.String(), nil
}
