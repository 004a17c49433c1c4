package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
)

// ExportCycleStatement builds an xlsx statement for one billing cycle: a
// header block with the cycle window and totals, then one row per line item.
func (e *BillingEngine) ExportCycleStatement(ctx context.Context, tenantId string, cycleId int) (*excelize.File, error) {
	cycle, err := e.GetBillingCycle(ctx, tenantId, cycleId)
	if err != nil {
		return nil, err
	}
	items, err := e.GetBillingItems(ctx, tenantId, cycleId)
	if err != nil {
		return nil, err
	}
	summary, err := e.GetCycleSummary(ctx, tenantId, cycleId)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	sheet := "Sheet1"
	if _, err := f.NewSheet(sheet); err != nil {
		return nil, err
	}

	f.SetCellValue(sheet, "A1", "Billing Statement")
	f.SetCellValue(sheet, "A2", "Cycle")
	f.SetCellValue(sheet, "B2", cycle.ID)
	f.SetCellValue(sheet, "A3", "Scope")
	f.SetCellValue(sheet, "B3", fmt.Sprintf("%s/%s", cycle.ScopeType, cycle.ScopeId))
	f.SetCellValue(sheet, "A4", "Period")
	f.SetCellValue(sheet, "B4", cycle.StartDate.Format(time.DateOnly)+" to "+cycle.EndDate.Format(time.DateOnly))
	f.SetCellValue(sheet, "A5", "Status")
	f.SetCellValue(sheet, "B5", string(cycle.Status))
	f.SetCellValue(sheet, "A6", "Items")
	f.SetCellValue(sheet, "B6", summary.ItemCount)
	f.SetCellValue(sheet, "A7", "Total")
	f.SetCellValue(sheet, "B7", summary.Total.StringFixed(4))
	f.SetCellValue(sheet, "C7", summary.Currency)

	headerRow := 9
	f.SetCellValue(sheet, "A"+fmt.Sprint(headerRow), "ItemType")
	f.SetCellValue(sheet, "B"+fmt.Sprint(headerRow), "Description")
	f.SetCellValue(sheet, "C"+fmt.Sprint(headerRow), "Quantity")
	f.SetCellValue(sheet, "D"+fmt.Sprint(headerRow), "UnitPrice")
	f.SetCellValue(sheet, "E"+fmt.Sprint(headerRow), "TotalAmount")
	f.SetCellValue(sheet, "F"+fmt.Sprint(headerRow), "Currency")
	f.SetCellValue(sheet, "G"+fmt.Sprint(headerRow), "CreatedAt")

	for i, item := range items {
		row := fmt.Sprint(headerRow + 1 + i)
		f.SetCellValue(sheet, "A"+row, item.ItemType)
		f.SetCellValue(sheet, "B"+row, item.Description)
		f.SetCellValue(sheet, "C"+row, item.Quantity.String())
		f.SetCellValue(sheet, "D"+row, item.UnitPrice.StringFixed(4))
		f.SetCellValue(sheet, "E"+row, item.TotalAmount.StringFixed(4))
		f.SetCellValue(sheet, "F"+row, item.Currency)
		f.SetCellValue(sheet, "G"+row, item.CreatedAt.Format(time.RFC3339))
	}

	return f, nil
}
