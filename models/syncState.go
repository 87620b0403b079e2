package models

import "time"

const (
	SyncPhaseHeaders  = "headers"
	SyncPhaseDetails  = "details"
	SyncPhaseComplete = "complete"
)

const (
	SyncStatusIdle    = "idle"
	SyncStatusRunning = "running"
	SyncStatusPaused  = "paused"
	SyncStatusFailed  = "failed"
)

const (
	SyncTriggeredManual = "manual"
	SyncTriggeredCron   = "cron"
	SyncTriggeredSystem = "system"
)

// SyncStateSingletonID is the fixed primary key of the one sync_states row.
const SyncStateSingletonID = 1

// SyncState is the durable progress record of the sync engine. Exactly one
// row exists (id = 1, enforced by a check constraint); it is re-initialized,
// never deleted.
type SyncState struct {
	ID                 int        `gorm:"primaryKey;autoIncrement:false;check:chk_sync_state_singleton,id = 1" json:"id"`
	Phase              string     `gorm:"size:20;not null" json:"phase"`
	Status             string     `gorm:"size:20;not null" json:"status"`
	HighestProcessedID int        `json:"highest_processed_id"`
	LastProcessedID    int        `json:"last_processed_id"`
	PagesFetched       int        `json:"pages_fetched"`
	HeadersInserted    int        `json:"headers_inserted"`
	HeadersSkipped     int        `json:"headers_skipped"`
	DetailsSynced      int        `json:"details_synced"`
	DetailsFailed      int        `json:"details_failed"`
	LastError          *string    `gorm:"type:text" json:"last_error"`
	StartedAt          *time.Time `json:"started_at"`
	FinishedAt         *time.Time `json:"finished_at"`
	CreatedAt          time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// SyncQueueEntry is one header awaiting detail enrichment. Created by the
// header phase, consumed by the detail phase; an entry survives across runs
// until its header is successfully enriched.
type SyncQueueEntry struct {
	HeaderID      int        `gorm:"primaryKey;autoIncrement:false" json:"header_id"`
	Priority      int        `gorm:"default:0" json:"priority"`
	Attempts      int        `gorm:"default:0" json:"attempts"`
	LastAttemptAt *time.Time `json:"last_attempt_at"`
	LastError     *string    `gorm:"type:text" json:"last_error"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// RateLimitRecord is the per-endpoint view of the rate governor's state.
// Observational only — the governor's in-process counters are authoritative.
type RateLimitRecord struct {
	Endpoint      string     `gorm:"primaryKey;size:64" json:"endpoint"`
	LastRequestAt *time.Time `json:"last_request_at"`
	WindowCount   int        `json:"window_count"`
	IsLimited     bool       `gorm:"default:false" json:"is_limited"`
	ResetAt       *time.Time `json:"reset_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
