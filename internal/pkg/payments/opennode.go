package payments

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tipcast/tipcast/app/models"
)

// OpenNode delivers Lightning charge events. Authentication rides in the
// payload itself: hashed_order is the HMAC-SHA256 of the charge id keyed
// with the API key.
type OpenNode struct {
	apiKey string
}

// NewOpenNode creates the OpenNode adapter with the account API key.
func NewOpenNode(apiKey string) *OpenNode {
	return &OpenNode{apiKey: apiKey}
}

func (p *OpenNode) Name() string { return models.PaymentProviderOpenNode }

type openNodePayload struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	HashedOrder string `json:"hashed_order"`
}

func (p *OpenNode) VerifySignature(payload []byte, header HeaderFunc) bool {
	if strings.TrimSpace(p.apiKey) == "" {
		return false
	}
	var body openNodePayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return false
	}
	if body.ID == "" || body.HashedOrder == "" {
		return false
	}
	return equalConstantTime(hmacSHA256Hex(body.ID, p.apiKey), body.HashedOrder)
}

func (p *OpenNode) ParseEvent(payload []byte, header HeaderFunc) (*Event, error) {
	var body openNodePayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("opennode: invalid payload: %w", err)
	}
	if body.ID == "" {
		return nil, fmt.Errorf("opennode: missing charge id")
	}

	ev := &Event{
		// OpenNode sends one callback per status change; the charge id plus
		// status identifies the event.
		Key:               body.ID + ":" + body.Status,
		RawType:           body.Status,
		ProviderPaymentID: body.ID,
	}
	switch strings.ToLower(strings.TrimSpace(body.Status)) {
	case "paid":
		ev.Type = EventPaymentCompleted
	case "expired":
		ev.Type = EventPaymentExpired
	default:
		ev.Type = EventIgnored
	}
	return ev, nil
}
