package enums

import "fmt"

// WebhookEventType identifies the order lifecycle event carried by a webhook.
type WebhookEventType string

const (
	WebhookEventOrderCreated   WebhookEventType = "order.created"
	WebhookEventOrderCompleted WebhookEventType = "order.completed"
	WebhookEventOrderFailed    WebhookEventType = "order.failed"
	WebhookEventOrderRefunded  WebhookEventType = "order.refunded"
)

var validWebhookEventTypes = []WebhookEventType{
	WebhookEventOrderCreated,
	WebhookEventOrderCompleted,
	WebhookEventOrderFailed,
	WebhookEventOrderRefunded,
}

// String implements fmt.Stringer.
func (t WebhookEventType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known WebhookEventType.
func (t WebhookEventType) IsValid() bool {
	for _, candidate := range validWebhookEventTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseWebhookEventType converts raw input into a WebhookEventType.
func ParseWebhookEventType(value string) (WebhookEventType, error) {
	for _, candidate := range validWebhookEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid webhook event type %q", value)
}
