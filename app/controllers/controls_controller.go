package controllers

import (
	"bufio"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	"github.com/tipcast/tipcast/internal/pkg/controlcast"
	"github.com/tipcast/tipcast/internal/pkg/usercontext"
)

const streamHeartbeat = 25 * time.Second

// HandleControlCommand accepts a control action from the streamer's own
// session (dashboard) and fans it out to every live overlay connection.
func HandleControlCommand(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)
	if userID == 0 {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Login required")
	}
	return applyControlCommand(c, userID)
}

// HandleControlWebhook accepts a control action from an external device
// authenticated by API key. The API key middleware has already resolved the
// owning streamer into the request context.
func HandleControlWebhook(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)
	if userID == 0 {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Invalid API key")
	}
	return applyControlCommand(c, userID)
}

func applyControlCommand(c *fiber.Ctx, userID uint) error {
	var cmd controlcast.Command
	if err := c.BodyParser(&cmd); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Unparseable command")
	}
	cmd.Timestamp = time.Now()
	if err := cmd.Validate(); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Unknown section or action")
	}

	// Skip and replay also mutate the alert queue server-side; the broadcast
	// only tells overlays what happened.
	if cmd.Section == controlcast.SectionAlerts {
		switch cmd.Action {
		case "skip":
			if err := deps.Alerts.SkipCurrent(c.Context(), userID); err != nil {
				log.Errorf("[Controls] Skip current failed for user %d: %v", userID, err)
				return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Skip failed")
			}
		case "replay":
			if _, err := deps.Alerts.ReplayLast(c.Context(), userID); err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				log.Errorf("[Controls] Replay failed for user %d: %v", userID, err)
				return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Replay failed")
			}
		}
	}

	if err := deps.Notifier.Publish(c.Context(), userID, cmd); err != nil {
		log.Errorf("[Controls] Publish failed for user %d: %v", userID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Broadcast failed")
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

// HandleControlStream opens the long-lived one-way control stream consumed
// by the overlay. The first event is always the current control snapshot;
// afterwards every broadcast for the streamer arrives as one SSE event.
func HandleControlStream(c *fiber.Ctx) error {
	user, _, err := resolveOverlayStreamer(c.Query("username"), c.Query("token"))
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Invalid overlay credentials")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Overlay lookup failed")
	}

	sub, err := deps.Hub.Connect(user.ID)
	if err != nil {
		return jsonError(c, fiber.StatusServiceUnavailable, "unavailable", "Connection limit reached")
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	hub := deps.Hub
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer hub.Disconnect(sub)

		heartbeat := time.NewTicker(streamHeartbeat)
		defer heartbeat.Stop()

		for {
			select {
			case data, ok := <-sub.C:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			case <-heartbeat.C:
				// Comment line keeps intermediaries from timing out the
				// connection and detects dead clients.
				if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	}))

	return nil
}

// HandleControlState returns the current folded control state for the
// authenticated streamer, for dashboards that render before connecting.
func HandleControlState(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)
	if userID == 0 {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Login required")
	}
	state := deps.Hub.CurrentState(userID)
	return c.JSON(fiber.Map{"state": state, "connections": deps.Hub.ConnectionCount(userID)})
}
