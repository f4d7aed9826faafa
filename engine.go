package goToken

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/MrEthical07/goToken/blacklist"
	internalaudit "github.com/MrEthical07/goToken/internal/audit"
	"github.com/MrEthical07/goToken/internal/flows"
	"github.com/MrEthical07/goToken/internal/rate"
	"github.com/MrEthical07/goToken/internal/tokens"
	"github.com/MrEthical07/goToken/records"
)

// Engine is the token lifecycle facade: the only entry point transport layers use.
//
// Engine instances are built by [Builder.Build] and are safe for concurrent use.
type Engine struct {
	config      Config
	factory     *tokens.Factory
	validator   *tokens.Validator
	store       records.Store
	oneTime     records.OneTimeStore
	blacklist   *blacklist.List
	ownedCache  *blacklist.MemoryCache
	rateLimiter *rate.Limiter
	directory   Directory
	flows       flows.Service
	audit       *internalaudit.Dispatcher
	metrics     *Metrics
	logger      zerolog.Logger
	now         func() time.Time

	closeOnce sync.Once
	done      chan struct{}
	sweepers  sync.WaitGroup
}

// Close stops running sweepers, flushes the audit dispatcher and releases
// engine-owned resources. Stores and caches passed to the Builder are left open.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		if e.done != nil {
			close(e.done)
		}
		e.sweepers.Wait()
		if e.audit != nil {
			e.audit.Close()
		}
		if e.ownedCache != nil {
			e.ownedCache.Stop()
		}
	})
}

// AuditDropped returns the number of audit events dropped because the buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns the current counters and histograms.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) ready() bool {
	return e != nil && e.flows.Initialized()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricAdd(id MetricID, n int) {
	if e == nil || e.metrics == nil || n <= 0 {
		return
	}
	e.metrics.Add(id, uint64(n))
}

func (e *Engine) observe(id MetricID, start time.Time) {
	if e == nil || !e.metrics.LatencyEnabled() {
		return
	}
	e.metrics.Observe(id, time.Since(start))
}

// backendFailure counts, logs and wraps a store, cache or directory error.
func (e *Engine) backendFailure(op string, err error) error {
	mapped := unavailable(err)
	if KindOf(mapped) == KindUnavailable {
		e.metricInc(MetricBackendUnavailable)
		e.logger.Error().Err(err).Str("op", op).Msg("goToken: backend unavailable")
	}
	return mapped
}

func (e *Engine) warn(msg string, fields ...any) {
	e.logger.Warn().Fields(fields).Msg(msg)
}

func (e *Engine) lookupUser(ctx context.Context, userID int64) (tokens.Identity, bool, error) {
	u, err := e.directory.FindUser(ctx, userID)
	if err != nil {
		return tokens.Identity{}, false, err
	}
	id := u.Identity()
	id.UserID = userID
	return id, u.Status.Usable(), nil
}
