package goToken

import (
	"context"
	"strconv"
	"time"
)

// Cleanup deletes refresh and one-time records that expired at or before now and
// returns how many were removed. Validity is computed lazily, so Cleanup only
// bounds storage growth.
func (e *Engine) Cleanup(ctx context.Context) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	res := e.flows.Cleanup(ctx)
	deleted := res.Refresh + res.OneTime
	e.metricInc(MetricCleanupRun)
	e.metricAdd(MetricCleanupDeleted, deleted)
	if res.Err != nil {
		return deleted, e.backendFailure("cleanup", res.Err)
	}
	if deleted > 0 {
		e.logger.Debug().Int("refresh", res.Refresh).Int("one_time", res.OneTime).Msg("goToken: expired records deleted")
	}
	return deleted, nil
}

// StartCleanup runs Cleanup every Cleanup.Interval until ctx is done, the
// returned stop function is called or the Engine is closed. A zero interval
// disables the sweeper.
func (e *Engine) StartCleanup(ctx context.Context) (stop func()) {
	if !e.ready() || e.config.Cleanup.Interval <= 0 {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	e.sweepers.Add(1)
	go func() {
		defer e.sweepers.Done()
		ticker := time.NewTicker(e.config.Cleanup.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-e.done:
				return
			case <-ticker.C:
				e.sweep(ctx)
			}
		}
	}()
	return cancel
}

func (e *Engine) sweep(ctx context.Context) {
	runCtx := ctx
	if e.config.Cleanup.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.config.Cleanup.Timeout)
		defer cancel()
	}
	deleted, err := e.Cleanup(runCtx)
	if err != nil {
		e.logger.Warn().Err(err).Msg("goToken: cleanup sweep failed")
		return
	}
	e.logger.Info().Int("deleted", deleted).Msg("goToken: cleanup sweep finished")
	e.emitAudit(ctx, auditRecord{
		eventType: auditEventCleanup,
		success:   true,
		metadata: func() map[string]string {
			return map[string]string{"deleted": strconv.Itoa(deleted)}
		},
	})
}
