package jobqueue

import (
	"context"
	"fmt"
)

// processNarrationJob hands the alert referenced by the job to the narration
// builder. The builder is responsible for idempotency: an alert that already
// left the queued state makes the job a no-op.
func (q *Queue) processNarrationJob(ctx context.Context, job *Job) error {
	payload, err := NarrationJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid narration payload: %w", err)
	}
	if payload.AlertID == 0 {
		return fmt.Errorf("narration job %s has no alert id", job.ID)
	}

	q.mu.Lock()
	processor := q.narration
	q.mu.Unlock()
	if processor == nil {
		return fmt.Errorf("narration processor not configured")
	}

	return processor.Build(ctx, payload.AlertID)
}
