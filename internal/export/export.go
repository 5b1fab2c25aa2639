// Package export renders a model and its trace history as an Excel workbook.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/jask/wbtrace/internal/workbook"
)

const (
	ModelSheet  = "Model"
	TracesSheet = "Traces"
)

var traceHeader = []any{"Trace ID", "Timestamp", "Tracked Range", "Username", "Value", "Recorded At"}

// WriteWorkbook writes m and traces to w as xlsx. Scalar values land in
// typed cells; lists, maps and numbers a float cannot hold exactly are
// written as text.
func WriteWorkbook(w io.Writer, m workbook.Model, traces []workbook.Trace) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ModelSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(TracesSheet); err != nil {
		return fmt.Errorf("create traces sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	if err := writeModel(f, m, bold); err != nil {
		return err
	}
	if err := writeTraces(f, traces, bold); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func writeModel(f *excelize.File, m workbook.Model, bold int) error {
	rows := [][]any{
		{"Model ID", m.ID},
		{"Model Name", m.Name},
		{"Version", m.Version},
		{},
		{"Range Name", "Range"},
	}
	for _, tr := range m.TrackedRanges {
		rows = append(rows, []any{tr.Name, tr.Range})
	}
	if err := setRows(f, ModelSheet, rows); err != nil {
		return err
	}
	if err := f.SetCellStyle(ModelSheet, "A1", "A3", bold); err != nil {
		return fmt.Errorf("style model sheet: %w", err)
	}
	if err := f.SetCellStyle(ModelSheet, "A5", "B5", bold); err != nil {
		return fmt.Errorf("style model sheet: %w", err)
	}
	return f.SetColWidth(ModelSheet, "A", "B", 24)
}

func writeTraces(f *excelize.File, traces []workbook.Trace, bold int) error {
	rows := make([][]any, 0, len(traces)+1)
	rows = append(rows, traceHeader)
	for _, t := range traces {
		rows = append(rows, []any{
			t.ID,
			t.Timestamp,
			t.TrackedRangeName,
			t.Username,
			cellValue(t.Value),
			t.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	if err := setRows(f, TracesSheet, rows); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(traceHeader), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(TracesSheet, "A1", last, bold); err != nil {
		return fmt.Errorf("style traces sheet: %w", err)
	}
	return f.SetColWidth(TracesSheet, "B", "F", 22)
}

func setRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("%s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func cellValue(v workbook.Value) any {
	switch v.Kind() {
	case workbook.KindNull:
		return ""
	case workbook.KindBool:
		b, _ := v.Bool()
		return b
	case workbook.KindNumber:
		if n, ok := v.ExactNumber(); ok {
			return n
		}
		lit, _ := v.Literal()
		return lit.String()
	case workbook.KindString:
		s, _ := v.Str()
		return s
	default:
		return v.String()
	}
}
