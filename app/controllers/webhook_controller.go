package controllers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/tipcast/tipcast/internal/pkg/alerts"
	"github.com/tipcast/tipcast/internal/pkg/payments"
)

// HandleProviderWebhook terminates payment provider webhook deliveries:
// signature check, payload normalization, then the idempotency guard around
// the alert pipeline. Providers retry on non-2xx, so every handler failure
// maps to a retryable status and every duplicate to a cheap 200.
func HandleProviderWebhook(c *fiber.Ctx) error {
	providerName := c.Params("provider")
	provider := deps.Providers.Get(providerName)
	if provider == nil {
		return jsonError(c, fiber.StatusNotFound, "not_found", "Unknown payment provider")
	}

	payload := c.Body()
	header := func(name string) string { return c.Get(name) }

	if !provider.VerifySignature(payload, header) {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Invalid webhook signature")
	}

	event, err := provider.ParseEvent(payload, header)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Unparseable webhook payload")
	}

	if event.Type == payments.EventIgnored {
		// Unrecognized event types are acknowledged so the provider stops
		// retrying.
		return c.JSON(fiber.Map{"status": "ignored"})
	}

	handler := func(ctx context.Context) error {
		switch event.Type {
		case payments.EventPaymentCompleted:
			return deps.Alerts.HandlePaymentCompleted(ctx, provider.Name(), event.ProviderPaymentID)
		case payments.EventPaymentExpired:
			return deps.Alerts.HandlePaymentExpired(ctx, provider.Name(), event.ProviderPaymentID)
		default:
			return nil
		}
	}

	alreadyProcessed, err := deps.Guard.ProcessOnce(c.Context(), provider.Name(), event.Key, event.RawType, payload, handler)
	if err != nil {
		if errors.Is(err, alerts.ErrDonationNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "Unknown payment reference")
		}
		log.Errorf("[Webhook] %s event %s failed: %v", provider.Name(), event.Key, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Event processing failed")
	}

	if alreadyProcessed {
		return c.JSON(fiber.Map{"status": "duplicate"})
	}
	return c.JSON(fiber.Map{"status": "processed"})
}
