package payments

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tipcast/tipcast/app/models"
)

// MercadoPago delivers card payment notifications signed with the
// "ts=...,v1=..." scheme: v1 is the HMAC-SHA256 of
// "id:<data.id>;request-id:<x-request-id>;ts:<ts>;".
type MercadoPago struct {
	secret string
}

// NewMercadoPago creates the Mercado Pago adapter with its webhook secret.
func NewMercadoPago(secret string) *MercadoPago {
	return &MercadoPago{secret: secret}
}

func (p *MercadoPago) Name() string { return models.PaymentProviderMercadoPago }

type mercadoPagoPayload struct {
	ID     json.Number `json:"id"`
	Type   string      `json:"type"`
	Action string      `json:"action"`
	Data   struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (p *MercadoPago) VerifySignature(payload []byte, header HeaderFunc) bool {
	if strings.TrimSpace(p.secret) == "" {
		return false
	}
	ts, v1 := parseMercadoPagoSignature(header("x-signature"))
	if ts == "" || v1 == "" {
		return false
	}

	var body mercadoPagoPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return false
	}

	manifest := fmt.Sprintf("id:%s;request-id:%s;ts:%s;",
		strings.ToLower(body.Data.ID), header("x-request-id"), ts)
	return equalConstantTime(hmacSHA256Hex(manifest, p.secret), v1)
}

func (p *MercadoPago) ParseEvent(payload []byte, header HeaderFunc) (*Event, error) {
	var body mercadoPagoPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("mercadopago: invalid payload: %w", err)
	}
	if body.Data.ID == "" {
		return nil, fmt.Errorf("mercadopago: missing data.id")
	}

	ev := &Event{
		Key:               body.ID.String(),
		RawType:           body.Action,
		ProviderPaymentID: body.Data.ID,
	}
	if ev.Key == "" || ev.Key == "0" {
		ev.Key = body.Action + ":" + body.Data.ID
	}

	if body.Type != "payment" {
		ev.Type = EventIgnored
		return ev, nil
	}
	switch strings.ToLower(strings.TrimSpace(body.Action)) {
	case "payment.approved":
		ev.Type = EventPaymentCompleted
	case "payment.cancelled", "payment.expired":
		ev.Type = EventPaymentExpired
	default:
		ev.Type = EventIgnored
	}
	return ev, nil
}

// parseMercadoPagoSignature splits "ts=1704908010,v1=618c85..." into parts.
func parseMercadoPagoSignature(sig string) (ts, v1 string) {
	for _, part := range strings.Split(sig, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(k) {
		case "ts":
			ts = strings.TrimSpace(v)
		case "v1":
			v1 = strings.TrimSpace(v)
		}
	}
	return ts, v1
}
