package frotixsync

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bitbucket.org/mmdatafocus/fleetsync_backend/models"
)

// Store is the persistence surface of the sync engine. Both phases and the
// orchestrator go through it, which keeps the phase logic testable without a
// database.
type Store interface {
	GovernorRecorder

	KnownHeaderIDs(ctx context.Context) (map[int]struct{}, error)
	MaxHeaderID(ctx context.Context) (int, error)
	InsertHeaders(ctx context.Context, headers []models.ServiceOrderHeader) (int, error)
	RefreshHeaders(ctx context.Context, headers []models.ServiceOrderHeader) error
	EnsureVehicles(ctx context.Context, plates []string) error
	EnqueueDetails(ctx context.Context, headerIDs []int) error

	PendingHeaderIDs(ctx context.Context, limit int) ([]int, error)
	ReplaceItems(ctx context.Context, headerID int, items []models.ServiceOrderItem, header models.ServiceOrderHeader) error
	MarkDetailFailed(ctx context.Context, headerID int, cause error) error

	LoadState(ctx context.Context) (*models.SyncState, error)
	SaveState(ctx context.Context, state *models.SyncState) error
	AdvanceHighestProcessed(ctx context.Context, id int) error
	SetLastProcessed(ctx context.Context, id int) error

	RecomputeVehicleAggregates(ctx context.Context) (int, error)
	AppendAudit(ctx context.Context, entry *models.AuditLogEntry) error
}

// GormStore implements Store on the shared gorm connection.
type GormStore struct {
	db     *gorm.DB
	writer *BatchUpsertWriter
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{
		db:     db,
		writer: NewBatchUpsertWriter(db, defaultUpsertChunkSize, nil),
	}
}

// KnownHeaderIDs loads the full set of locally present header ids. Loaded
// once per run, so the header phase can skip duplicates without a query per
// record.
func (s *GormStore) KnownHeaderIDs(ctx context.Context) (map[int]struct{}, error) {
	var ids []int
	err := s.db.WithContext(ctx).
		Model(&models.ServiceOrderHeader{}).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	known := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		known[id] = struct{}{}
	}
	return known, nil
}

func (s *GormStore) MaxHeaderID(ctx context.Context) (int, error) {
	var maxID *int
	err := s.db.WithContext(ctx).
		Model(&models.ServiceOrderHeader{}).
		Select("MAX(id)").
		Scan(&maxID).Error
	if err != nil {
		return 0, err
	}
	if maxID == nil {
		return 0, nil
	}
	return *maxID, nil
}

// InsertHeaders writes new headers, ignoring any that raced in since the
// known-id set was loaded. Returns the number of rows actually inserted.
func (s *GormStore) InsertHeaders(ctx context.Context, headers []models.ServiceOrderHeader) (int, error) {
	if len(headers) == 0 {
		return 0, nil
	}
	inserted := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, chunk := range chunkRecords(headers, defaultUpsertChunkSize) {
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&chunk)
			if res.Error != nil {
				return res.Error
			}
			inserted += int(res.RowsAffected)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// RefreshHeaders re-upserts already-known headers so descriptive columns
// (plate, supplier, document number) follow remote edits. Columns owned by
// the detail phase are untouched.
func (s *GormStore) RefreshHeaders(ctx context.Context, headers []models.ServiceOrderHeader) error {
	return s.writer.UpsertHeaders(ctx, headers)
}

// EnsureVehicles creates vehicle rows for plates not seen before. Existing
// rows are left alone so manual edits to descriptions survive syncs.
func (s *GormStore) EnsureVehicles(ctx context.Context, plates []string) error {
	if len(plates) == 0 {
		return nil
	}
	vehicles := make([]models.Vehicle, 0, len(plates))
	for _, plate := range plates {
		vehicles = append(vehicles, models.Vehicle{Plate: plate, Active: true})
	}
	return s.writer.UpsertVehicles(ctx, vehicles)
}

func (s *GormStore) EnqueueDetails(ctx context.Context, headerIDs []int) error {
	if len(headerIDs) == 0 {
		return nil
	}
	entries := make([]models.SyncQueueEntry, 0, len(headerIDs))
	for _, id := range headerIDs {
		entries = append(entries, models.SyncQueueEntry{HeaderID: id})
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&entries).Error
}

// PendingHeaderIDs returns queue entries whose headers are still missing
// details, oldest first. Entries whose header vanished are ignored by the
// join rather than cleaned up here.
func (s *GormStore) PendingHeaderIDs(ctx context.Context, limit int) ([]int, error) {
	var ids []int
	query := s.db.WithContext(ctx).
		Model(&models.SyncQueueEntry{}).
		Joins("JOIN service_order_headers h ON h.id = sync_queue_entries.header_id").
		Where("h.details_synced = ?", false).
		Order("sync_queue_entries.priority DESC, sync_queue_entries.header_id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Pluck("sync_queue_entries.header_id", &ids).Error
	return ids, err
}

// ReplaceItems atomically swaps a header's item lines for the fetched ones,
// stamps the header as enriched and removes the queue entry. Either the
// whole order is enriched or nothing changed.
func (s *GormStore) ReplaceItems(ctx context.Context, headerID int, items []models.ServiceOrderItem, header models.ServiceOrderHeader) error {
	now := time.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("header_id = ?", headerID).
			Delete(&models.ServiceOrderItem{}).Error; err != nil {
			return err
		}
		if len(items) > 0 {
			for _, chunk := range chunkRecords(items, defaultUpsertChunkSize) {
				if err := tx.Create(&chunk).Error; err != nil {
					return err
				}
			}
		}
		updates := map[string]interface{}{
			"total_value":       header.TotalValue,
			"item_count":        header.ItemCount,
			"details_synced":    true,
			"sync_error":        nil,
			"sync_attempted_at": now,
			"synced_at":         now,
		}
		if err := tx.Model(&models.ServiceOrderHeader{}).
			Where("id = ?", headerID).
			Updates(updates).Error; err != nil {
			return err
		}
		return tx.Where("header_id = ?", headerID).
			Delete(&models.SyncQueueEntry{}).Error
	})
}

// MarkDetailFailed records the failure on both the header and its queue
// entry so the order is retried on a later run.
func (s *GormStore) MarkDetailFailed(ctx context.Context, headerID int, cause error) error {
	now := time.Now()
	message := cause.Error()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.ServiceOrderHeader{}).
			Where("id = ?", headerID).
			Updates(map[string]interface{}{
				"sync_error":        message,
				"sync_attempted_at": now,
			}).Error; err != nil {
			return err
		}
		return tx.Model(&models.SyncQueueEntry{}).
			Where("header_id = ?", headerID).
			Updates(map[string]interface{}{
				"attempts":        gorm.Expr("attempts + 1"),
				"last_attempt_at": now,
				"last_error":      message,
			}).Error
	})
}
