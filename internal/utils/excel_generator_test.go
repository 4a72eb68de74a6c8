package utils

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"shudh/internal/models"
)

func sampleOperations() []models.Operation {
	gas := 61.5
	opID := "op-42"
	area := "Dhanmondi"
	base := time.Date(2025, 5, 4, 8, 30, 0, 0, time.UTC)
	return []models.Operation{
		{ID: 2, OperationID: &opID, DeviceID: "robot-1", BeforePath: "images/b2.jpg", AfterPath: "images/a2.jpg",
			GasLevel: &gas, GasStatus: "alert", Area: &area, Status: "completed", Timestamp: base.Add(time.Hour)},
		{ID: 1, DeviceID: "robot-2", BeforePath: "images/b1.jpg", AfterPath: "images/a1.jpg",
			GasStatus: "normal", Status: "completed", Timestamp: base},
	}
}

func TestWriteExcel(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteExcel(&buf, sampleOperations()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(operationsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3, "header plus one row per operation")
	assert.Equal(t, exportHeaders, rows[0])
	assert.Equal(t, "op-42", rows[1][1])
	assert.Equal(t, "robot-1", rows[1][2])
	assert.Equal(t, "2025-05-04 09:30:00", rows[1][3])
	assert.Equal(t, "Dhanmondi", rows[1][11])
	assert.Equal(t, "", rows[2][1])

	summary, err := f.GetRows(summarySheet)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(summary), 3)
	assert.Equal(t, []string{"Total Operations", "2"}, summary[1])
	assert.Equal(t, "2025-05-04 08:30:00 to 2025-05-04 09:30:00", summary[2][1])
}

func TestWriteExcel_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteExcel(&buf, nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(operationsSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleOperations()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, exportHeaders, records[0])
	assert.Equal(t, []string{"2", "op-42", "robot-1", "2025-05-04T09:30:00Z", "images/b2.jpg", "images/a2.jpg",
		"61.5", "alert", "", "", "", "Dhanmondi", "", "", "", "", "", "completed"}, records[1])
}
