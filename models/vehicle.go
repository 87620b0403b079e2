package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Vehicle struct {
	Plate       string    `gorm:"primaryKey;size:16" json:"plate"`
	Description string    `gorm:"size:255" json:"description"`
	Active      bool      `gorm:"default:true" json:"active"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// VehicleExpenseAggregate is the per-plate expense rollup consumed by
// reporting. Always fully recomputed from service_order_items — never
// incrementally patched.
type VehicleExpenseAggregate struct {
	Plate            string          `gorm:"primaryKey;size:16" json:"plate"`
	TotalExpense     decimal.Decimal `gorm:"type:decimal(16,2)" json:"total_expense"`
	ExpenseCount     int             `json:"expense_count"`
	ItemCount        int             `json:"item_count"`
	FirstExpenseDate *time.Time      `json:"first_expense_date"`
	LastExpenseDate  *time.Time      `json:"last_expense_date"`
	AvgItemValue     decimal.Decimal `gorm:"type:decimal(16,2)" json:"avg_item_value"`
	MaxItemValue     decimal.Decimal `gorm:"type:decimal(16,2)" json:"max_item_value"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}
