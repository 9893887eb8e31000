package evaluation

import (
	"context"
	"errors"
	"time"

	apperrors "induction-portal/internal/common/errors"

	"github.com/robfig/cron/v3"
)

// Schedule runs EvaluateAllUnevaluated on a cron spec ("@every 1h",
// "0 2 * * *"). Overlapping ticks are skipped. The caller owns the
// returned scheduler and must Stop it.
func (b *BatchRunner) Schedule(spec string, timeout time.Duration) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))

	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		summary, err := b.EvaluateAllUnevaluated(ctx)
		switch {
		case errors.Is(err, apperrors.ErrBatchInProgress):
			b.logger.Info("scheduled batch skipped, another run holds the lock", nil)
		case err != nil:
			b.logger.Error("scheduled batch failed", map[string]interface{}{"error": err})
		default:
			b.logger.Info("scheduled batch completed", map[string]interface{}{
				"total":  summary.Total,
				"errors": summary.Errors,
			})
		}
	})
	if err != nil {
		return nil, err
	}

	c.Start()
	b.logger.Info("batch evaluation scheduled", map[string]interface{}{"schedule": spec})
	return c, nil
}
