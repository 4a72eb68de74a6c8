package utils

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"shudh/internal/models"
)

const (
	operationsSheet = "Operations"
	summarySheet    = "Summary"
	timeLayout      = "2006-01-02 15:04:05"

	// gas readings above this are highlighted in exports
	GasAlertThreshold = 50.0
)

var exportHeaders = []string{
	"ID", "Operation ID", "Device ID", "Timestamp", "Before Path", "After Path",
	"Gas Level", "Gas Status", "Location", "Latitude", "Longitude",
	"Area", "Division", "District", "Duration (s)", "Start Time", "End Time", "Status",
}

// WriteExcel renders ops as an xlsx workbook: one header row plus one row
// per operation, and a summary sheet.
func WriteExcel(w io.Writer, ops []models.Operation) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", operationsSheet); err != nil {
		return err
	}

	header := make([]interface{}, len(exportHeaders))
	for i, h := range exportHeaders {
		header[i] = h
	}
	if err := f.SetSheetRow(operationsSheet, "A1", &header); err != nil {
		return err
	}

	gasStyle, err := f.NewStyle(&excelize.Style{NumFmt: 2})
	if err != nil {
		return err
	}

	for i, op := range ops {
		row := i + 2
		values := []interface{}{
			op.ID, str(op.OperationID), op.DeviceID, op.Timestamp.UTC().Format(timeLayout),
			op.BeforePath, op.AfterPath, num(op.GasLevel), op.GasStatus, str(op.Location),
			num(op.Latitude), num(op.Longitude), str(op.Area), str(op.Division), str(op.District),
			intVal(op.DurationSeconds), timeVal(op.StartTime), timeVal(op.EndTime), op.Status,
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(operationsSheet, cell, &values); err != nil {
			return err
		}
		gasCell := fmt.Sprintf("G%d", row)
		if err := f.SetCellStyle(operationsSheet, gasCell, gasCell, gasStyle); err != nil {
			return err
		}
	}

	for i := 1; i <= len(exportHeaders); i++ {
		colName, _ := excelize.ColumnNumberToName(i)
		if err := f.SetColWidth(operationsSheet, colName, colName, 18); err != nil {
			return err
		}
	}

	if len(ops) > 0 {
		if err := highlightGasAlerts(f, len(ops)); err != nil {
			return err
		}
	}
	if len(ops) > 1 {
		if err := addGasChart(f, len(ops)); err != nil {
			return err
		}
	}
	if err := addSummarySheet(f, ops); err != nil {
		return err
	}

	f.SetActiveSheet(0)
	return f.Write(w)
}

func highlightGasAlerts(f *excelize.File, rows int) error {
	style, err := f.NewConditionalStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#FFCCCC"}, Pattern: 1},
	})
	if err != nil {
		return err
	}
	return f.SetConditionalFormat(operationsSheet, fmt.Sprintf("G2:G%d", rows+1), []excelize.ConditionalFormatOptions{
		{
			Type:     "cell",
			Criteria: ">",
			Value:    strconv.FormatFloat(GasAlertThreshold, 'f', -1, 64),
			Format:   &style,
		},
	})
}

func addGasChart(f *excelize.File, rows int) error {
	last := rows + 1
	return f.AddChart(operationsSheet, "T2", &excelize.Chart{
		Type: excelize.Line,
		Series: []excelize.ChartSeries{
			{
				Name:       "Gas level",
				Categories: fmt.Sprintf("%s!$D$2:$D$%d", operationsSheet, last),
				Values:     fmt.Sprintf("%s!$G$2:$G$%d", operationsSheet, last),
			},
		},
		Title:     []excelize.RichTextRun{{Text: "Gas level per operation"}},
		XAxis:     excelize.ChartAxis{MajorGridLines: true},
		YAxis:     excelize.ChartAxis{MajorGridLines: true},
		Dimension: excelize.ChartDimension{Width: 600, Height: 400},
	})
}

func addSummarySheet(f *excelize.File, ops []models.Operation) error {
	if _, err := f.NewSheet(summarySheet); err != nil {
		return err
	}

	rows := [][]interface{}{
		{"Report Generated", time.Now().UTC().Format(timeLayout)},
		{"Total Operations", len(ops)},
	}
	if len(ops) > 0 {
		oldest, newest := ops[0].Timestamp, ops[0].Timestamp
		for _, op := range ops {
			if op.Timestamp.Before(oldest) {
				oldest = op.Timestamp
			}
			if op.Timestamp.After(newest) {
				newest = op.Timestamp
			}
		}
		rows = append(rows, []interface{}{"Time Range",
			fmt.Sprintf("%s to %s", oldest.UTC().Format(timeLayout), newest.UTC().Format(timeLayout))})
	}
	if lo, hi, ok := gasRange(ops); ok {
		rows = append(rows, []interface{}{"Gas Level Range", fmt.Sprintf("%.2f - %.2f", lo, hi)})
	}

	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return err
		}
	}
	return f.SetColWidth(summarySheet, "A", "B", 28)
}

func gasRange(ops []models.Operation) (lo, hi float64, ok bool) {
	for _, op := range ops {
		if op.GasLevel == nil {
			continue
		}
		v := *op.GasLevel
		if !ok {
			lo, hi, ok = v, v, true
			continue
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi, ok
}

// WriteCSV renders ops with the same columns as WriteExcel.
func WriteCSV(w io.Writer, ops []models.Operation) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(exportHeaders); err != nil {
		return err
	}

	for _, op := range ops {
		record := []string{
			strconv.FormatUint(uint64(op.ID), 10),
			deref(op.OperationID),
			op.DeviceID,
			op.Timestamp.UTC().Format(time.RFC3339),
			op.BeforePath,
			op.AfterPath,
			floatString(op.GasLevel),
			op.GasStatus,
			deref(op.Location),
			floatString(op.Latitude),
			floatString(op.Longitude),
			deref(op.Area),
			deref(op.Division),
			deref(op.District),
			intString(op.DurationSeconds),
			timeString(op.StartTime),
			timeString(op.EndTime),
			op.Status,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// excel cells: nil leaves the cell empty

func str(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func num(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func intVal(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func timeVal(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func floatString(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func intString(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func timeString(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
