package reports

import (
	"errors"
	"io"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

type ExcelExporter interface {
	GetCellValues() []interface{}
}

// Sheet is one worksheet of an exported workbook: a heading row followed by one row per item.
type Sheet struct {
	Name     string
	Headings []string
	Rows     []ExcelExporter
}

func rowsOf[T ExcelExporter](items []T) []ExcelExporter {
	rows := make([]ExcelExporter, len(items))
	for i, item := range items {
		rows[i] = item
	}
	return rows
}

func (r *AbcReport) Sheet() Sheet {
	return Sheet{
		Name:     "ABC Analysis",
		Headings: []string{"ProductId", "ConsumptionValue", "Share", "CumulativeShare", "Class"},
		Rows:     rowsOf(r.Items),
	}
}

func (r *ForecastReport) Sheet() Sheet {
	return Sheet{
		Name:     "Demand Forecast",
		Headings: []string{"ProductId", "Forecast", "DailyDemand", "LeadTimeDays", "LeadTimeDemand"},
		Rows:     rowsOf(r.Items),
	}
}

func (r *TurnoverReport) Sheet() Sheet {
	return Sheet{
		Name:     "Turnover",
		Headings: []string{"WarehouseId", "ProductId", "VariantId", "Issued", "AverageOnHand", "Rate", "Undefined"},
		Rows:     rowsOf(r.Items),
	}
}

func (r *CarryingCostReport) Sheet() Sheet {
	return Sheet{
		Name:     "Carrying Cost",
		Headings: []string{"WarehouseId", "ProductId", "VariantId", "AverageOnHand", "AverageValue", "Cost"},
		Rows:     rowsOf(r.Items),
	}
}

func (r *ValuationReport) Sheet() Sheet {
	return Sheet{
		Name:     "Valuation",
		Headings: []string{"WarehouseId", "ProductId", "VariantId", "OnHand", "Reserved", "AverageCost", "Value"},
		Rows:     rowsOf(r.Lines),
	}
}

func LowStockSheet(items []*LowStockItem) Sheet {
	return Sheet{
		Name:     "Low Stock",
		Headings: []string{"RuleId", "ProductId", "LocationId", "OnHand", "Reserved", "Available", "ReorderPoint", "SuggestedQty", "LeadTimeDays"},
		Rows:     rowsOf(items),
	}
}

func cellValue(v interface{}) interface{} {
	if d, ok := v.(decimal.Decimal); ok {
		return d.InexactFloat64()
	}
	return v
}

func newWorkbook(sheets []Sheet) (*excelize.File, error) {
	if len(sheets) == 0 {
		return nil, errors.New("export workbook: no sheets")
	}
	f := excelize.NewFile()
	for i, sheet := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sheet.Name); err != nil {
				return nil, err
			}
		} else if _, err := f.NewSheet(sheet.Name); err != nil {
			return nil, err
		}

		// Add headers
		for col, h := range sheet.Headings {
			cell, err := excelize.CoordinatesToCellName(col+1, 1)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheet.Name, cell, h); err != nil {
				return nil, err
			}
		}

		// Add data
		for row, d := range sheet.Rows {
			for col, value := range d.GetCellValues() {
				cell, err := excelize.CoordinatesToCellName(col+1, row+2)
				if err != nil {
					return nil, err
				}
				if err := f.SetCellValue(sheet.Name, cell, cellValue(value)); err != nil {
					return nil, err
				}
			}
		}
	}
	return f, nil
}

// WriteWorkbook renders sheets into one xlsx document on w.
func WriteWorkbook(w io.Writer, sheets ...Sheet) error {
	f, err := newWorkbook(sheets)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}

func SaveWorkbook(filename string, sheets ...Sheet) error {
	f, err := newWorkbook(sheets)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.SaveAs(filename)
}
