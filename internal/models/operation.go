package models

import (
	"time"
)

// Operation is one device observation: a before/after image pair plus
// optional sensor and location metadata.
type Operation struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	OperationID     *string    `gorm:"column:operation_id" json:"operation_id,omitempty"`
	DeviceID        string     `gorm:"column:device_id;not null" json:"device_id"`
	BeforePath      string     `gorm:"column:before_path;not null" json:"before_path"`
	AfterPath       string     `gorm:"column:after_path;not null" json:"after_path"`
	GasLevel        *float64   `gorm:"column:gas_level" json:"gas_level,omitempty"`
	Location        *string    `gorm:"column:location" json:"location,omitempty"`
	Latitude        *float64   `gorm:"column:latitude" json:"latitude,omitempty"`
	Longitude       *float64   `gorm:"column:longitude" json:"longitude,omitempty"`
	DurationSeconds *int       `gorm:"column:duration_seconds" json:"duration_seconds,omitempty"`
	Area            *string    `gorm:"column:area" json:"area,omitempty"`
	Division        *string    `gorm:"column:division" json:"division,omitempty"`
	District        *string    `gorm:"column:district" json:"district,omitempty"`
	StartTime       *time.Time `gorm:"column:start_time" json:"start_time,omitempty"`
	EndTime         *time.Time `gorm:"column:end_time" json:"end_time,omitempty"`
	Status          string     `gorm:"column:operation_status;default:completed" json:"operation_status"`
	GasStatus       string     `gorm:"column:gas_status;default:normal" json:"gas_status"`
	Timestamp       time.Time  `gorm:"column:timestamp;default:CURRENT_TIMESTAMP" json:"timestamp"`
}

func (Operation) TableName() string {
	return "operations"
}

// OperationStats summarises the operations table.
type OperationStats struct {
	Count        int64            `json:"count"`
	Devices      int64            `json:"devices"`
	AvgGasLevel  *float64         `json:"avg_gas_level,omitempty"`
	MaxGasLevel  *float64         `json:"max_gas_level,omitempty"`
	ByGasStatus  map[string]int64 `json:"by_gas_status"`
	LastRecorded *time.Time       `json:"last_recorded,omitempty"`
}
