package models

import "time"

// AuditLogEntry is an append-only record of one sync operation. The engine
// writes these but never reads them back.
type AuditLogEntry struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	EntityName  string     `gorm:"size:50;index" json:"entity_name"`
	Operation   string     `gorm:"size:30" json:"operation"`
	RecordCount int        `json:"record_count"`
	Status      string     `gorm:"size:20" json:"status"`
	Error       *string    `gorm:"type:text" json:"error"`
	StartedAt   *time.Time `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
}
