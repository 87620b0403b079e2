package frotixsync

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bitbucket.org/mmdatafocus/fleetsync_backend/models"
)

// LoadState returns the singleton progress row, creating an idle one on
// first use.
func (s *GormStore) LoadState(ctx context.Context) (*models.SyncState, error) {
	var state models.SyncState
	err := s.db.WithContext(ctx).
		First(&state, models.SyncStateSingletonID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		state = models.SyncState{
			ID:     models.SyncStateSingletonID,
			Phase:  models.SyncPhaseHeaders,
			Status: models.SyncStatusIdle,
		}
		if createErr := s.db.WithContext(ctx).Create(&state).Error; createErr != nil {
			return nil, createErr
		}
		return &state, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *GormStore) SaveState(ctx context.Context, state *models.SyncState) error {
	state.ID = models.SyncStateSingletonID
	return s.db.WithContext(ctx).Save(state).Error
}

// AdvanceHighestProcessed raises the watermark, never lowers it. GREATEST
// keeps the update monotonic even if a stale run writes late.
func (s *GormStore) AdvanceHighestProcessed(ctx context.Context, id int) error {
	return s.db.WithContext(ctx).
		Model(&models.SyncState{}).
		Where("id = ?", models.SyncStateSingletonID).
		Update("highest_processed_id", gorm.Expr("GREATEST(highest_processed_id, ?)", id)).Error
}

func (s *GormStore) SetLastProcessed(ctx context.Context, id int) error {
	return s.db.WithContext(ctx).
		Model(&models.SyncState{}).
		Where("id = ?", models.SyncStateSingletonID).
		Update("last_processed_id", id).Error
}

// TouchRateLimit upserts the observational per-endpoint rate-limit row.
func (s *GormStore) TouchRateLimit(ctx context.Context, endpoint string, limited bool, resetAt *time.Time) error {
	now := time.Now()
	record := models.RateLimitRecord{
		Endpoint:      endpoint,
		LastRequestAt: &now,
		WindowCount:   1,
		IsLimited:     limited,
		ResetAt:       resetAt,
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "endpoint"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"last_request_at": now,
				"window_count":    gorm.Expr("window_count + 1"),
				"is_limited":      limited,
				"reset_at":        resetAt,
			}),
		}).
		Create(&record).Error
}

func (s *GormStore) AppendAudit(ctx context.Context, entry *models.AuditLogEntry) error {
	return s.db.WithContext(ctx).Create(entry).Error
}

// RecentAuditEntries returns the latest sync runs for the history endpoint.
func (s *GormStore) RecentAuditEntries(ctx context.Context, limit int) ([]models.AuditLogEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	var entries []models.AuditLogEntry
	err := s.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}
