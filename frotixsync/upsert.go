package frotixsync

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bitbucket.org/mmdatafocus/fleetsync_backend/models"
)

const defaultUpsertChunkSize = 100

// UpsertObserver is notified after each persisted chunk. Used for progress
// logging; a nil observer is fine.
type UpsertObserver func(table string, written int)

// BatchUpsertWriter persists record batches in bounded chunks, one
// transaction per call. Conflicting rows are updated in place so re-running
// a sync over the same pages is harmless.
type BatchUpsertWriter struct {
	db       *gorm.DB
	chunk    int
	observer UpsertObserver
}

func NewBatchUpsertWriter(db *gorm.DB, chunkSize int, observer UpsertObserver) *BatchUpsertWriter {
	if chunkSize <= 0 {
		chunkSize = defaultUpsertChunkSize
	}
	return &BatchUpsertWriter{db: db, chunk: chunkSize, observer: observer}
}

// headerRefreshColumns are the columns a header upsert may overwrite on
// conflict. total_value, item_count and details_synced belong to the detail
// phase and are deliberately absent.
var headerRefreshColumns = []string{
	"company_code", "unit_code", "open_date", "vehicle_plate",
	"supplier_code", "document_number", "synced_at",
}

func headerConflictClause() clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(headerRefreshColumns),
	}
}

// UpsertHeaders writes headers keyed by remote id. Columns the detail phase
// owns (total_value, item_count, details_synced) are left untouched on
// conflict so a header refresh cannot undo an enrichment.
func (w *BatchUpsertWriter) UpsertHeaders(ctx context.Context, headers []models.ServiceOrderHeader) error {
	if len(headers) == 0 {
		return nil
	}
	return w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, chunk := range chunkRecords(headers, w.chunk) {
			err := tx.Clauses(headerConflictClause()).Create(&chunk).Error
			if err != nil {
				return err
			}
			w.notify("service_order_headers", len(chunk))
		}
		return nil
	})
}

// UpsertVehicles keeps the vehicles table in step with plates seen on
// incoming headers.
func (w *BatchUpsertWriter) UpsertVehicles(ctx context.Context, vehicles []models.Vehicle) error {
	if len(vehicles) == 0 {
		return nil
	}
	return w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, chunk := range chunkRecords(vehicles, w.chunk) {
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "plate"}},
				DoNothing: true,
			}).Create(&chunk).Error
			if err != nil {
				return err
			}
			w.notify("vehicles", len(chunk))
		}
		return nil
	})
}

func (w *BatchUpsertWriter) notify(table string, written int) {
	if w.observer != nil {
		w.observer(table, written)
	}
}

func chunkRecords[T any](records []T, size int) [][]T {
	if size <= 0 || len(records) == 0 {
		return nil
	}
	chunks := make([][]T, 0, (len(records)+size-1)/size)
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		chunks = append(chunks, records[start:end])
	}
	return chunks
}
