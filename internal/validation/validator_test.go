package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type uploadForm struct {
	DeviceID   string `form:"device_id" validate:"required,max=8"`
	BeforePath string `form:"before_path" validate:"required_without=HasBefore"`
	HasBefore  bool   `form:"-"`
	GasLevel   string `form:"gas_level" validate:"omitempty,numeric"`
	StartTime  string `form:"start_time" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

func TestValidateStruct_Valid(t *testing.T) {
	errs := ValidateStruct(&uploadForm{
		DeviceID:   "robot-1",
		BeforePath: "b.jpg",
		GasLevel:   "12.5",
		StartTime:  "2025-05-04T08:30:00Z",
	})
	assert.Nil(t, errs)
}

func TestValidateStruct_Messages(t *testing.T) {
	errs := ValidateStruct(&uploadForm{
		GasLevel:  "lots",
		StartTime: "yesterday",
	})
	require.Len(t, errs, 4)

	byField := map[string]*ErrorResponse{}
	for _, e := range errs {
		byField[e.FailedField] = e
	}

	assert.Equal(t, "required", byField["device_id"].Tag)
	assert.Equal(t, "The device_id field is required.", byField["device_id"].Message)
	assert.Equal(t, "required_without", byField["before_path"].Tag)
	assert.Equal(t, "The gas_level field must be a number.", byField["gas_level"].Message)
	assert.Equal(t, "lots", byField["gas_level"].Value)
	assert.Equal(t, "The start_time field must be an RFC 3339 timestamp.", byField["start_time"].Message)

	assert.Len(t, Messages(errs), 4)
}

func TestValidateStruct_Max(t *testing.T) {
	errs := ValidateStruct(&uploadForm{DeviceID: "robot-123456", BeforePath: "b"})
	require.Len(t, errs, 1)
	assert.Equal(t, "The device_id field must have at most 8 characters.", errs[0].Message)
}
