package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper evaluates overdue workflow steps.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// StartEscalationWorker runs sweeper every interval until ctx is done. The
// returned channel closes when the loop exits.
func StartEscalationWorker(ctx context.Context, sweeper Sweeper, interval time.Duration, logger *zap.Logger) <-chan struct{} {
	stopped := make(chan struct{})
	if sweeper == nil {
		close(stopped)
		return stopped
	}

	go func() {
		defer close(stopped)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		logger.Info("escalation worker started", zap.Duration("interval", interval))
		for {
			select {
			case <-ctx.Done():
				logger.Info("escalation worker stopped")
				return
			case <-ticker.C:
				escalated, err := sweeper.Sweep(ctx)
				if err != nil {
					logger.Warn("escalation sweep failed", zap.Error(err))
					continue
				}
				if escalated > 0 {
					logger.Info("escalation sweep complete", zap.Int("escalated", escalated))
				}
			}
		}
	}()
	return stopped
}
