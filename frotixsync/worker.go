package frotixsync

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"time"

	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/fleetsync_backend/config"
	"bitbucket.org/mmdatafocus/fleetsync_backend/models"
)

const syncLockKey = "frotix:service-order-sync"

// Engine orchestrates one sync run: header phase, detail phase, aggregate
// recompute, with durable progress in the sync state row and one audit
// entry per run.
type Engine struct {
	catalog Catalog
	store   Store
	logger  *logrus.Logger
	stop    atomic.Bool
}

func NewEngine(catalog Catalog, store Store, logger *logrus.Logger) *Engine {
	return &Engine{catalog: catalog, store: store, logger: logger}
}

// NewDefaultEngine wires an engine from the environment and the shared
// database connection.
func NewDefaultEngine() *Engine {
	logger := config.GetLogger()
	store := NewGormStore(config.GetDB())

	governor := NewRateGovernor(
		config.IntFromEnv("FROTIX_RATE_LIMIT_PER_MIN", 30),
		config.IntFromEnv("FROTIX_RATE_LIMIT_PER_HOUR", 1200),
		store,
	)

	baseURL := os.Getenv("FROTIX_API_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.frotix.com.br/v1"
	}
	client := NewClient(baseURL, StaticToken(os.Getenv("FROTIX_API_TOKEN")), governor, logger)

	return NewEngine(client, store, logger)
}

// Stop asks the running sync to pause at the next safe point. Safe to call
// from any goroutine, including signal handlers.
func (e *Engine) Stop() {
	e.stop.Store(true)
}

func (e *Engine) stopped() bool {
	return e.stop.Load()
}

// Run executes one sync according to opts and always returns a filled
// result; Err and Success report the outcome.
func (e *Engine) Run(ctx context.Context, opts Options) SyncResult {
	start := time.Now()
	result := SyncResult{Entity: "service_orders", Mode: opts.Mode}
	defer func() {
		result.Duration = time.Since(start)
	}()

	if opts.Mode == "" {
		opts.Mode = ModeIncremental
		result.Mode = ModeIncremental
	}
	e.stop.Store(false)

	state, err := e.store.LoadState(ctx)
	if err != nil {
		result.Err = err
		return result
	}

	e.beginRun(state, opts, start)
	if err := e.store.SaveState(ctx, state); err != nil {
		result.Err = err
		return result
	}

	var runErr error

	if opts.Mode != ModeDetailsOnly {
		phase := NewHeaderPhase(e.catalog, e.store, e.logger, e.stopped)
		headerRes, err := phase.Run(ctx, opts, state)
		result.PagesFetched = headerRes.Pages
		result.HeadersInserted = headerRes.Inserted
		result.HeadersSkipped = headerRes.Skipped
		runErr = err
	}

	if runErr == nil && !opts.NoDetails {
		state.Phase = models.SyncPhaseDetails
		if err := e.store.SaveState(ctx, state); err != nil {
			runErr = err
		} else {
			phase := NewDetailPhase(e.catalog, e.store, e.logger, e.stopped)
			detailRes, err := phase.Run(ctx, opts, state)
			result.DetailsSynced = detailRes.Synced
			result.DetailsFailed = detailRes.Failed
			result.ItemsWritten = detailRes.Items
			runErr = err
		}
	}

	if runErr == nil && result.ItemsWritten > 0 {
		updated, err := e.store.RecomputeVehicleAggregates(ctx)
		if err != nil {
			runErr = err
		} else {
			result.VehiclesUpdated = updated
		}
	}

	e.finishRun(ctx, state, &result, runErr)
	return result
}

func (e *Engine) beginRun(state *models.SyncState, opts Options, start time.Time) {
	state.Status = models.SyncStatusRunning
	state.LastError = nil
	state.FinishedAt = nil

	switch opts.Mode {
	case ModeResume:
		// keep counters, continue where the paused run left off
	case ModeDetailsOnly:
		state.Phase = models.SyncPhaseDetails
	default:
		state.Phase = models.SyncPhaseHeaders
		state.PagesFetched = 0
		state.HeadersInserted = 0
		state.HeadersSkipped = 0
		state.DetailsSynced = 0
		state.DetailsFailed = 0
		state.StartedAt = &start
	}
	if state.StartedAt == nil {
		state.StartedAt = &start
	}
}

func (e *Engine) finishRun(ctx context.Context, state *models.SyncState, result *SyncResult, runErr error) {
	now := time.Now()

	switch {
	case runErr == nil:
		state.Phase = models.SyncPhaseComplete
		state.Status = models.SyncStatusIdle
		state.FinishedAt = &now
		result.Success = true
	case errors.Is(runErr, ErrStopRequested):
		state.Status = models.SyncStatusPaused
		result.Err = runErr
	default:
		state.Status = models.SyncStatusFailed
		message := runErr.Error()
		state.LastError = &message
		state.FinishedAt = &now
		result.Err = runErr
	}

	if err := e.store.SaveState(ctx, state); err != nil {
		e.logger.WithError(err).Error("failed to persist sync state after run")
		if result.Err == nil {
			result.Err = err
			result.Success = false
		}
	}

	e.appendAudit(ctx, result, state)

	entry := e.logger.WithFields(logrus.Fields{
		"mode":             string(result.Mode),
		"pages":            result.PagesFetched,
		"headers_inserted": result.HeadersInserted,
		"headers_skipped":  result.HeadersSkipped,
		"details_synced":   result.DetailsSynced,
		"details_failed":   result.DetailsFailed,
		"vehicles_updated": result.VehiclesUpdated,
		"duration":         result.Duration.String(),
		"status":           state.Status,
	})
	if result.Err != nil {
		entry.WithError(result.Err).Warn("sync run finished with error")
	} else {
		entry.Info("sync run finished")
	}
}

func (e *Engine) appendAudit(ctx context.Context, result *SyncResult, state *models.SyncState) {
	status := "success"
	var errText *string
	if result.Err != nil {
		status = state.Status
		message := result.Err.Error()
		errText = &message
	}
	now := time.Now()
	entry := &models.AuditLogEntry{
		EntityName:  result.Entity,
		Operation:   string(result.Mode),
		RecordCount: result.HeadersInserted + result.DetailsSynced,
		Status:      status,
		Error:       errText,
		StartedAt:   state.StartedAt,
		FinishedAt:  &now,
	}
	if err := e.store.AppendAudit(ctx, entry); err != nil {
		e.logger.WithError(err).Warn("failed to append sync audit entry")
	}
}

// RunLocked guards Run with a distributed lock so overlapping triggers
// (cron + manual, or two service replicas) cannot start concurrent syncs.
func RunLocked(ctx context.Context, engine *Engine, opts Options) (SyncResult, error) {
	locker := config.GetRedisLock()
	if locker == nil {
		return SyncResult{}, errors.New("service not ready (redis lock not initialized)")
	}

	lock, err := locker.Obtain(ctx, syncLockKey, 30*time.Minute, nil)
	if err == redislock.ErrNotObtained {
		return SyncResult{}, ErrSyncAlreadyRunning
	} else if err != nil {
		return SyncResult{}, err
	}
	defer func() {
		_ = lock.Release(ctx)
	}()

	result := engine.Run(ctx, opts)
	return result, result.Err
}
