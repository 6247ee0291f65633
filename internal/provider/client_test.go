package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/safetrade/safetrade-backend/pkg/config"
	pkgerrors "github.com/safetrade/safetrade-backend/pkg/errors"
)

var codePattern = regexp.MustCompile(`^[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}$`)

func TestSandboxPurchase(t *testing.T) {
	client := NewSandboxClient()

	result, err := client.Purchase(context.Background(), "netflix-turkey-200", 1)
	if err != nil {
		t.Fatalf("purchase failed: %v", err)
	}
	if !codePattern.MatchString(result.GiftCardCode) {
		t.Fatalf("unexpected code format %q", result.GiftCardCode)
	}
	if result.OrderID == "" || result.OrderID[:3] != "BF-" {
		t.Fatalf("unexpected order id %q", result.OrderID)
	}
	if result.Status != "COMPLETED" {
		t.Fatalf("unexpected status %q", result.Status)
	}
}

func TestSandboxPurchase_Validation(t *testing.T) {
	client := NewSandboxClient()

	if _, err := client.Purchase(context.Background(), "", 1); pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error for empty sku, got %v", err)
	}
	if _, err := client.Purchase(context.Background(), "sku", 0); pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error for zero quantity, got %v", err)
	}
}

func TestHTTPPurchase_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/orders" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("missing bearer auth, got %q", got)
		}
		var req purchaseRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.ProductSKU != "steam-turkey-500" || req.Quantity != 2 {
			t.Errorf("unexpected request %+v", req)
		}
		_ = json.NewEncoder(w).Encode(PurchaseResult{
			OrderID:      "BF-123",
			ProductSKU:   req.ProductSKU,
			Quantity:     req.Quantity,
			GiftCardCode: "AAAA-BBBB-CCCC-DDDD",
			Status:       "COMPLETED",
		})
	}))
	defer server.Close()

	client, err := NewHTTPClient("test-key", WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("NewHTTPClient failed: %v", err)
	}

	result, err := client.Purchase(context.Background(), "steam-turkey-500", 2)
	if err != nil {
		t.Fatalf("purchase failed: %v", err)
	}
	if result.GiftCardCode != "AAAA-BBBB-CCCC-DDDD" {
		t.Fatalf("unexpected code %q", result.GiftCardCode)
	}
}

func TestHTTPPurchase_NonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "out of stock", http.StatusConflict)
	}))
	defer server.Close()

	client, err := NewHTTPClient("test-key", WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("NewHTTPClient failed: %v", err)
	}

	_, err = client.Purchase(context.Background(), "sku", 1)
	if pkgerrors.CodeOf(err) != pkgerrors.CodeProvider {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestHTTPPurchase_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client, err := NewHTTPClient("test-key",
		WithBaseURL(server.URL),
		WithHTTPClient(&http.Client{Timeout: 20 * time.Millisecond}))
	if err != nil {
		t.Fatalf("NewHTTPClient failed: %v", err)
	}

	_, err = client.Purchase(context.Background(), "sku", 1)
	if pkgerrors.CodeOf(err) != pkgerrors.CodeProvider {
		t.Fatalf("expected provider error on timeout, got %v", err)
	}
}

func TestNew_SelectsSandbox(t *testing.T) {
	client, err := New(config.ProviderConfig{Sandbox: true})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, ok := client.(*SandboxClient); !ok {
		t.Fatalf("expected sandbox client, got %T", client)
	}
}
