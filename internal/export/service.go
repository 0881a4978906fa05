// Package export renders completed analyses as downloadable XLSX risk
// reports.
package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"contract-backend/internal/analyses"
	"contract-backend/internal/contracts"
)

const sheet = "Risk Report"

// BuildReportXLSX returns an XLSX workbook summarizing a completed analysis.
func BuildReportXLSX(contract contracts.Contract, analysis analyses.Analysis) ([]byte, error) {
	if analysis.Result == nil {
		return nil, fmt.Errorf("analysis %s has no result", analysis.ID)
	}
	result := analysis.Result

	f := excelize.NewFile()
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)
	_ = f.DeleteSheet("Sheet1")

	write := func(col, row int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheet, cell, v)
	}

	write(1, 1, "Contract")
	write(2, 1, contract.Title)
	write(1, 2, "Counterparty")
	write(2, 2, contract.PartyName)
	write(1, 3, "Analyzed At")
	if analysis.CompletedAt != nil {
		write(2, 3, analysis.CompletedAt.Format("2006-01-02 15:04"))
	}
	write(1, 4, "Safety Score")
	write(2, 4, result.SafetyScore)
	write(1, 5, "Summary")
	write(2, 5, result.Summary)
	if result.Fallback {
		write(1, 6, "Note")
		write(2, 6, "Pattern-based analysis only; AI review was unavailable.")
	}

	headerRow := 8
	headers := []string{"ID", "Severity", "Risk", "Description", "Suggestion", "Clause"}
	for i, h := range headers {
		write(i+1, headerRow, h)
	}

	row := headerRow + 1
	for _, r := range result.Risks {
		write(1, row, r.ID)
		write(2, row, r.Level)
		write(3, row, r.Title)
		write(4, row, r.Description)
		write(5, row, r.Suggestion)
		write(6, row, truncate(r.Clause, 140))
		row++
	}

	if len(result.Questions) > 0 {
		row++
		write(1, row, "Questions to ask")
		row++
		for _, q := range result.Questions {
			write(1, row, q)
			row++
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "…"
}
