package webhooks

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/safetrade/safetrade-backend/pkg/db/models"
	pkgerrors "github.com/safetrade/safetrade-backend/pkg/errors"
)

const (
	headerEvent      = "X-SafeTrade-Event"
	headerDeliveryID = "X-SafeTrade-Delivery-Id"
	headerAttempt    = "X-SafeTrade-Attempt"

	// dispatchTimeout bounds a single delivery attempt end to end.
	dispatchTimeout = 10 * time.Second

	maxErrorBodyBytes = 512
)

// Dispatcher pushes a webhook delivery to a partner endpoint.
type Dispatcher interface {
	Deliver(ctx context.Context, endpoint string, delivery *models.WebhookDelivery) error
}

type httpDispatcher struct {
	client *http.Client
}

// NewHTTPDispatcher returns a dispatcher that posts delivery payloads over
// HTTP with a bounded attempt timeout.
func NewHTTPDispatcher(client *http.Client) Dispatcher {
	if client == nil {
		client = &http.Client{Timeout: dispatchTimeout}
	}
	return &httpDispatcher{client: client}
}

func (d *httpDispatcher) Deliver(ctx context.Context, endpoint string, delivery *models.WebhookDelivery) error {
	ctx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(delivery.Payload))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerEvent, delivery.EventType.String())
	req.Header.Set(headerDeliveryID, delivery.ID.String())
	req.Header.Set(headerAttempt, strconv.Itoa(delivery.Attempts))

	resp, err := d.client.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "dispatch webhook")
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("webhook endpoint returned %d: %s", resp.StatusCode, string(body)))
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
