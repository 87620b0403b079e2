package reports

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"bitbucket.org/mmdatafocus/fleetsync_backend/config"
)

type VehicleExpenseReportRow struct {
	Plate            string          `json:"plate"`
	Description      string          `json:"description"`
	TotalExpense     decimal.Decimal `json:"total_expense"`
	ExpenseCount     int             `json:"expense_count"`
	ItemCount        int             `json:"item_count"`
	FirstExpenseDate *string         `json:"first_expense_date"`
	LastExpenseDate  *string         `json:"last_expense_date"`
	AvgItemValue     decimal.Decimal `json:"avg_item_value"`
	MaxItemValue     decimal.Decimal `json:"max_item_value"`
}

func GetVehicleExpenseReport(ctx context.Context) ([]*VehicleExpenseReportRow, error) {

	sql := `
SELECT
    agg.plate,
    COALESCE(v.description, '') AS description,
    agg.total_expense,
    agg.expense_count,
    agg.item_count,
    DATE_FORMAT(agg.first_expense_date, '%Y-%m-%d') AS first_expense_date,
    DATE_FORMAT(agg.last_expense_date, '%Y-%m-%d') AS last_expense_date,
    agg.avg_item_value,
    agg.max_item_value
FROM
    vehicle_expense_aggregates agg
    LEFT JOIN vehicles v ON v.plate = agg.plate
ORDER BY
    agg.total_expense DESC;
`

	var records []*VehicleExpenseReportRow
	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(sql).Scan(&records).Error; err != nil {
		return nil, err
	}

	return records, nil
}

func ExportVehicleExpenseExcel(data []*VehicleExpenseReportRow, filename string) error {

	f := excelize.NewFile()
	_, err := f.NewSheet("Sheet1")
	if err != nil {
		return err
	}

	// Add headers
	f.SetCellValue("Sheet1", "A1", "Plate")
	f.SetCellValue("Sheet1", "B1", "Description")
	f.SetCellValue("Sheet1", "C1", "TotalExpense")
	f.SetCellValue("Sheet1", "D1", "ExpenseCount")
	f.SetCellValue("Sheet1", "E1", "ItemCount")
	f.SetCellValue("Sheet1", "F1", "FirstExpense")
	f.SetCellValue("Sheet1", "G1", "LastExpense")
	f.SetCellValue("Sheet1", "H1", "AvgItemValue")
	f.SetCellValue("Sheet1", "I1", "MaxItemValue")

	// Add data
	for i, d := range data {
		row := fmt.Sprint(i + 2)
		f.SetCellValue("Sheet1", "A"+row, d.Plate)
		f.SetCellValue("Sheet1", "B"+row, d.Description)
		f.SetCellValue("Sheet1", "C"+row, d.TotalExpense.InexactFloat64())
		f.SetCellValue("Sheet1", "D"+row, d.ExpenseCount)
		f.SetCellValue("Sheet1", "E"+row, d.ItemCount)
		f.SetCellValue("Sheet1", "F"+row, derefString(d.FirstExpenseDate))
		f.SetCellValue("Sheet1", "G"+row, derefString(d.LastExpenseDate))
		f.SetCellValue("Sheet1", "H"+row, d.AvgItemValue.InexactFloat64())
		f.SetCellValue("Sheet1", "I"+row, d.MaxItemValue.InexactFloat64())
	}

	if err := f.SaveAs(filename); err != nil {
		return err
	}
	return nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
