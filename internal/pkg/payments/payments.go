// Package payments normalizes provider webhook payloads into the small
// event vocabulary the alert pipeline cares about. Invoice creation, fees
// and currency conversion live with the providers; only confirmation and
// expiry notifications cross into this service.
package payments

import "strings"

// Normalized event types. Anything else is acknowledged without side
// effects so providers stop retrying.
const (
	EventPaymentCompleted = "payment_completed"
	EventPaymentExpired   = "payment_expired"
	EventIgnored          = "ignored"
)

// Event is the provider-neutral result of parsing a webhook delivery.
type Event struct {
	// Key uniquely identifies this real-world event for deduplication.
	Key string
	// Type is one of the normalized event type constants.
	Type string
	// RawType is the provider's own event name, kept for the audit trail.
	RawType string
	// ProviderPaymentID references the donation's payment at the provider.
	ProviderPaymentID string
}

// HeaderFunc returns a request header value by name.
type HeaderFunc func(name string) string

// Provider adapts one payment provider's webhook format.
type Provider interface {
	Name() string
	// VerifySignature authenticates the raw delivery. Implementations use
	// constant-time comparison.
	VerifySignature(payload []byte, header HeaderFunc) bool
	ParseEvent(payload []byte, header HeaderFunc) (*Event, error)
}

// Registry maps provider names to adapters.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates a registry with the given adapters.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// Get returns the adapter for a provider name, or nil.
func (r *Registry) Get(name string) Provider {
	return r.providers[strings.ToLower(strings.TrimSpace(name))]
}
