package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ServiceOrderHeader mirrors one remote service order without its line items.
// The primary key is the remote system's identifier; rows are created by the
// header sync phase and enriched (totals, details_synced) by the detail phase.
type ServiceOrderHeader struct {
	ID              int              `gorm:"primaryKey;autoIncrement:false" json:"id"`
	CompanyCode     int              `gorm:"index" json:"company_code"`
	UnitCode        int              `json:"unit_code"`
	OpenDate        *time.Time       `gorm:"index" json:"open_date"`
	VehiclePlate    *string          `gorm:"size:16;index" json:"vehicle_plate"`
	SupplierCode    string           `gorm:"size:32" json:"supplier_code"`
	DocumentNumber  string           `gorm:"size:64" json:"document_number"`
	TotalValue      decimal.Decimal  `gorm:"type:decimal(14,2)" json:"total_value"`
	ItemCount       int              `json:"item_count"`
	DetailsSynced   bool             `gorm:"index;default:false" json:"details_synced"`
	SyncAttemptedAt *time.Time       `json:"sync_attempted_at"`
	SyncError       *string          `gorm:"type:text" json:"sync_error"`
	SyncedAt        time.Time        `json:"synced_at"`
	CreatedAt       time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
	Items           []ServiceOrderItem `gorm:"foreignKey:HeaderID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
}

// ServiceOrderItem is one priced line of a service order. Identity is
// (header id, item number). LineTotal is a stored generated column — the
// database derives it from unit_price * quantity and it is never written
// by application code.
type ServiceOrderItem struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	HeaderID   int             `gorm:"uniqueIndex:idx_service_order_item,priority:1;not null" json:"header_id"`
	ItemNumber int             `gorm:"uniqueIndex:idx_service_order_item,priority:2;not null" json:"item_number"`
	UnitPrice  decimal.Decimal `gorm:"type:decimal(14,2)" json:"unit_price"`
	Quantity   decimal.Decimal `gorm:"type:decimal(14,3)" json:"quantity"`
	LineTotal  decimal.Decimal `gorm:"->;type:decimal(16,2) GENERATED ALWAYS AS (unit_price * quantity) STORED" json:"line_total"`
	SyncedAt   time.Time       `json:"synced_at"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}
