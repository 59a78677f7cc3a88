package payments

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tipcast/tipcast/app/models"
)

// OpenPix delivers PIX charge lifecycle events with an HMAC-SHA256
// signature over the raw body.
type OpenPix struct {
	secret string
}

// NewOpenPix creates the OpenPix adapter with its webhook secret.
func NewOpenPix(secret string) *OpenPix {
	return &OpenPix{secret: secret}
}

func (p *OpenPix) Name() string { return models.PaymentProviderOpenPix }

func (p *OpenPix) VerifySignature(payload []byte, header HeaderFunc) bool {
	return verifyHMACSHA256Hex(payload, header("x-openpix-signature"), p.secret)
}

type openPixPayload struct {
	Event   string `json:"event"`
	EventID string `json:"eventId"`
	Charge  struct {
		CorrelationID string `json:"correlationID"`
	} `json:"charge"`
}

func (p *OpenPix) ParseEvent(payload []byte, header HeaderFunc) (*Event, error) {
	var body openPixPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("openpix: invalid payload: %w", err)
	}
	if body.Charge.CorrelationID == "" {
		return nil, fmt.Errorf("openpix: missing charge correlation id")
	}

	ev := &Event{
		Key:               body.EventID,
		RawType:           body.Event,
		ProviderPaymentID: body.Charge.CorrelationID,
	}
	if ev.Key == "" {
		ev.Key = body.Event + ":" + body.Charge.CorrelationID
	}

	switch strings.ToUpper(strings.TrimSpace(body.Event)) {
	case "OPENPIX:CHARGE_COMPLETED":
		ev.Type = EventPaymentCompleted
	case "OPENPIX:CHARGE_EXPIRED":
		ev.Type = EventPaymentExpired
	default:
		ev.Type = EventIgnored
	}
	return ev, nil
}
