package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"gorm.io/gorm"

	"shudh/internal/models"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

type OperationRepository interface {
	Create(ctx context.Context, op *models.Operation) error
	GetByID(ctx context.Context, id uint) (*models.Operation, error)
	GetByOperationID(ctx context.Context, operationID string) (*models.Operation, error)
	GetLatest(ctx context.Context, limit int) ([]models.Operation, error)
	GetByDateRange(ctx context.Context, from, to time.Time) ([]models.Operation, error)
	Count(ctx context.Context) (int64, error)
	GetStats(ctx context.Context) (*models.OperationStats, error)
	Ping(ctx context.Context) error
}

type operationRepository struct {
	db *gorm.DB
}

func NewOperationRepository(db *gorm.DB) OperationRepository {
	return &operationRepository{db: db}
}

// ClampLimit maps out-of-range limits to DefaultLimit.
func ClampLimit(limit int) int {
	if limit < 1 || limit > MaxLimit {
		return DefaultLimit
	}
	return limit
}

func (r *operationRepository) Create(ctx context.Context, op *models.Operation) error {
	return r.db.WithContext(ctx).Create(op).Error
}

// GetByID returns gorm.ErrRecordNotFound when no row matches.
func (r *operationRepository) GetByID(ctx context.Context, id uint) (*models.Operation, error) {
	var op models.Operation
	if err := r.db.WithContext(ctx).First(&op, id).Error; err != nil {
		return nil, err
	}
	return &op, nil
}

func (r *operationRepository) GetByOperationID(ctx context.Context, operationID string) (*models.Operation, error) {
	var op models.Operation
	err := r.db.WithContext(ctx).
		Where("operation_id = ?", operationID).
		First(&op).
		Error
	if err != nil {
		return nil, err
	}
	return &op, nil
}

func (r *operationRepository) GetLatest(ctx context.Context, limit int) ([]models.Operation, error) {
	var ops []models.Operation
	err := r.db.WithContext(ctx).
		Order("timestamp DESC").
		Order("id DESC").
		Limit(ClampLimit(limit)).
		Find(&ops).
		Error
	return ops, err
}

func (r *operationRepository) GetByDateRange(ctx context.Context, from, to time.Time) ([]models.Operation, error) {
	var ops []models.Operation
	err := r.db.WithContext(ctx).
		Where("timestamp BETWEEN ? AND ?", from, to).
		Order("timestamp DESC").
		Order("id DESC").
		Find(&ops).
		Error
	return ops, err
}

func (r *operationRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Operation{}).Count(&count).Error
	return count, err
}

func (r *operationRepository) GetStats(ctx context.Context) (*models.OperationStats, error) {
	stats := &models.OperationStats{ByGasStatus: map[string]int64{}}

	if err := r.db.WithContext(ctx).Model(&models.Operation{}).Count(&stats.Count).Error; err != nil {
		return nil, err
	}
	if stats.Count == 0 {
		return stats, nil
	}

	var avgGas, maxGas sql.NullFloat64
	row := r.db.WithContext(ctx).
		Model(&models.Operation{}).
		Select("COUNT(DISTINCT device_id), AVG(gas_level), MAX(gas_level)").
		Row()
	if err := row.Scan(&stats.Devices, &avgGas, &maxGas); err != nil {
		return nil, err
	}
	if avgGas.Valid {
		stats.AvgGasLevel = &avgGas.Float64
	}
	if maxGas.Valid {
		stats.MaxGasLevel = &maxGas.Float64
	}

	var groups []struct {
		GasStatus *string
		Total     int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.Operation{}).
		Select("gas_status, COUNT(*) AS total").
		Group("gas_status").
		Scan(&groups).
		Error
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		key := "unknown"
		if g.GasStatus != nil {
			key = *g.GasStatus
		}
		stats.ByGasStatus[key] += g.Total
	}

	var latest models.Operation
	err = r.db.WithContext(ctx).
		Order("timestamp DESC").
		Order("id DESC").
		First(&latest).
		Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if err == nil && !latest.Timestamp.IsZero() {
		stats.LastRecorded = &latest.Timestamp
	}

	return stats, nil
}

func (r *operationRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
