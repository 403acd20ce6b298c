// Package export renders reports as spreadsheets.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"boigordo/internal/core/types"
	"boigordo/internal/domain/statement"
)

// ContentTypeXLSX is the MIME type of the workbooks written here.
const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const sheet = "DRE"

var perpetualHeader = []any{
	"Month", "Gross revenue", "Deductions", "Costs", "Expenses",
	"Net profit", "Cumulative net", "Status", "Generated at",
}

// WritePerpetual writes the perpetual report as one row per month followed by
// a totals row.
func WritePerpetual(w io.Writer, r *statement.PerpetualReport) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(sheet, "A1", &[]any{"Scope", r.Scope, "From", r.From, "To", r.To}); err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, "A3", &perpetualHeader); err != nil {
		return err
	}

	row := 4
	for _, m := range r.Months {
		status := string(m.Status)
		generated := ""
		if !m.HasStatement {
			status = "MISSING"
		}
		if m.GeneratedAt != nil {
			generated = m.GeneratedAt.UTC().Format("2006-01-02 15:04")
		}
		values := []any{
			m.Month, amount(m.GrossRevenue), amount(m.Deductions), amount(m.TotalCosts),
			amount(m.TotalExpenses), amount(m.NetProfit), amount(m.CumulativeNet), status, generated,
		}
		if err := setRow(f, row, values); err != nil {
			return err
		}
		row++
	}

	totals := []any{
		"Total", amount(r.Totals.GrossRevenue), amount(r.Totals.Deductions), amount(r.Totals.TotalCosts),
		amount(r.Totals.TotalExpenses), amount(r.Totals.NetProfit),
	}
	if err := setRow(f, row, totals); err != nil {
		return err
	}

	style, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return fmt.Errorf("number style: %w", err)
	}
	if err := f.SetCellStyle(sheet, "B4", fmt.Sprintf("G%d", row), style); err != nil {
		return fmt.Errorf("apply number style: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A3", "I3", bold); err != nil {
		return fmt.Errorf("apply header style: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}
	return nil
}

func amount(m types.Money) float64 {
	v, _ := m.Float64()
	return v
}
