package controllers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/tipcast/tipcast/internal/pkg/jobqueue"
)

// HandleNarrationTrigger is the internal trusted endpoint that schedules the
// narration build for a queued alert. Reached only with the shared internal
// secret; never exposed to browsers.
func HandleNarrationTrigger(c *fiber.Ctx) error {
	alertID64, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil || alertID64 == 0 {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid alert id")
	}
	alertID := uint(alertID64)

	// Synchronous build when requested, asynchronous via the job queue
	// otherwise. The builder is idempotent either way.
	if c.Query("sync") == "1" {
		if deps.Narration == nil {
			return jsonError(c, fiber.StatusServiceUnavailable, "unavailable", "Narration builder not configured")
		}
		if err := deps.Narration.Build(c.Context(), alertID); err != nil {
			log.Errorf("[Narration] Sync build failed for alert %d: %v", alertID, err)
			return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Narration build failed")
		}
		return c.JSON(fiber.Map{"status": "built"})
	}

	queue := jobqueue.GetManager().GetQueue()
	job, err := queue.EnqueueNarration(alertID, 0)
	if err != nil {
		log.Errorf("[Narration] Enqueue failed for alert %d: %v", alertID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Enqueue failed")
	}
	return c.JSON(fiber.Map{"status": "queued", "job_id": job.ID})
}
