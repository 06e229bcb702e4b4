package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82/webhook"
)

// VerifyEvent authenticates a raw webhook body against the Stripe-Signature
// header and decodes the event envelope. The body must be the exact bytes
// received; re-encoded JSON will not verify.
func VerifyEvent(body []byte, signatureHeader, secret string) (Event, error) {
	if strings.TrimSpace(secret) == "" {
		return Event{}, fmt.Errorf("%w: webhook secret not configured", ErrInvalidSignature)
	}
	if strings.TrimSpace(signatureHeader) == "" {
		return Event{}, fmt.Errorf("%w: missing signature header", ErrInvalidSignature)
	}

	evt, err := webhook.ConstructEventWithOptions(body, signatureHeader, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if evt.ID == "" || evt.Type == "" {
		return Event{}, fmt.Errorf("%w: body is not an event envelope", ErrInvalidSignature)
	}

	out := Event{
		ID:        evt.ID,
		Type:      string(evt.Type),
		Kind:      EventKindFromType(string(evt.Type)),
		CreatedAt: time.Unix(evt.Created, 0).UTC(),
	}
	if evt.Data != nil {
		out.Payload = evt.Data.Raw
	}
	return out, nil
}
