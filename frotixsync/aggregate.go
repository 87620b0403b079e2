package frotixsync

import (
	"context"

	"bitbucket.org/mmdatafocus/fleetsync_backend/models"
)

// aggregateSQL recomputes every plate's rollup from scratch in one
// statement. Headers without a plate or without synced details contribute
// nothing; the vehicles join keeps the rollup scoped to known plates.
const aggregateSQL = `
INSERT INTO vehicle_expense_aggregates
	(plate, total_expense, expense_count, item_count,
	 first_expense_date, last_expense_date, avg_item_value, max_item_value, updated_at)
SELECT
	h.vehicle_plate,
	COALESCE(SUM(i.line_total), 0),
	COUNT(DISTINCT h.id),
	COUNT(i.id),
	MIN(h.open_date),
	MAX(h.open_date),
	COALESCE(AVG(i.line_total), 0),
	COALESCE(MAX(i.line_total), 0),
	NOW()
FROM service_order_headers h
JOIN vehicles v ON v.plate = h.vehicle_plate
JOIN service_order_items i ON i.header_id = h.id
WHERE h.vehicle_plate IS NOT NULL
  AND h.details_synced = 1
GROUP BY h.vehicle_plate
ON DUPLICATE KEY UPDATE
	total_expense      = VALUES(total_expense),
	expense_count      = VALUES(expense_count),
	item_count         = VALUES(item_count),
	first_expense_date = VALUES(first_expense_date),
	last_expense_date  = VALUES(last_expense_date),
	avg_item_value     = VALUES(avg_item_value),
	max_item_value     = VALUES(max_item_value),
	updated_at         = VALUES(updated_at)
`

// RecomputeVehicleAggregates rebuilds the per-vehicle expense rollups and
// returns how many plates currently have one.
func (s *GormStore) RecomputeVehicleAggregates(ctx context.Context) (int, error) {
	if err := s.db.WithContext(ctx).Exec(aggregateSQL).Error; err != nil {
		return 0, err
	}
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.VehicleExpenseAggregate{}).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}
