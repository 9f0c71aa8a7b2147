package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSweepExpired triggers a purge of expired delegations and ACL
	// entries. Evaluation already ignores expired rows; the sweep only
	// keeps the stores and snapshot from accumulating dead entries.
	TaskSweepExpired = "authz:sweep_expired"
)

// ExpiredPurger removes expired authorization entries.
type ExpiredPurger interface {
	PurgeExpired(ctx context.Context) int
}

// NewSweepExpiredTask constructs the sweep task. The task carries no
// payload; the handler works against current time.
func NewSweepExpiredTask() *asynq.Task {
	return asynq.NewTask(TaskSweepExpired, nil)
}

// NewSweepExpiredHandler returns the handler for TaskSweepExpired.
func NewSweepExpiredHandler(purger ExpiredPurger, logger *slog.Logger) asynq.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, t *asynq.Task) error {
		if purger == nil {
			return asynq.SkipRetry
		}
		removed := purger.PurgeExpired(ctx)
		if removed > 0 {
			logger.Info("swept expired authorization entries", slog.Int("removed", removed))
		}
		return nil
	}
}
