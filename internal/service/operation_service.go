package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"shudh/internal/models"
	"shudh/internal/repository"
	"shudh/internal/utils"
)

var (
	ErrOperationNotFound  = errors.New("operation not found")
	ErrDuplicateOperation = errors.New("operation already exists")
	ErrInvalidOperation   = errors.New("invalid operation")
	ErrUnsupportedFormat  = errors.New("unsupported export format")
	ErrNoData             = errors.New("no data found for the specified range")
)

const (
	recentCacheKey    = "operations:recent:%d"
	recentCachePrefix = "operations:recent:*"

	// export windows wider than this are trimmed from the start
	maxExportRange = 90 * 24 * time.Hour
)

// CreateOperationInput carries an already-validated upload.
type CreateOperationInput struct {
	OperationID     string
	DeviceID        string
	BeforePath      string
	AfterPath       string
	GasLevel        *float64
	GasStatus       string
	Location        string
	Area            string
	Division        string
	District        string
	DurationSeconds *int
	StartTime       *time.Time
	EndTime         *time.Time
}

// ExportFile is a rendered export ready to be sent to a client.
type ExportFile struct {
	Filename    string
	ContentType string
	Records     int
	Data        []byte
}

type OperationService interface {
	Create(ctx context.Context, in CreateOperationInput) (*models.Operation, error)
	Recent(ctx context.Context, limit int) ([]models.Operation, error)
	Get(ctx context.Context, id uint) (*models.Operation, error)
	Count(ctx context.Context) (int64, error)
	Stats(ctx context.Context) (*models.OperationStats, error)
	Export(ctx context.Context, format string, from, to time.Time) (*ExportFile, error)
	Ping(ctx context.Context) error
}

type operationService struct {
	repo     repository.OperationRepository
	cache    repository.CacheRepository
	cacheTTL time.Duration
	log      *zap.Logger
}

// NewOperationService wires the repositories. cache may be nil, in which
// case every read goes to the database.
func NewOperationService(repo repository.OperationRepository, cache repository.CacheRepository, cacheTTL time.Duration, log *zap.Logger) OperationService {
	if log == nil {
		log = zap.NewNop()
	}
	return &operationService{
		repo:     repo,
		cache:    cache,
		cacheTTL: cacheTTL,
		log:      log.Named("operations"),
	}
}

func (s *operationService) Create(ctx context.Context, in CreateOperationInput) (*models.Operation, error) {
	op, err := buildOperation(in)
	if err != nil {
		return nil, err
	}

	if op.OperationID != nil {
		if _, err := s.repo.GetByOperationID(ctx, *op.OperationID); err == nil {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateOperation, *op.OperationID)
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to check operation id: %w", err)
		}
	}

	if err := s.repo.Create(ctx, op); err != nil {
		// lost a race on the unique operation_id
		if op.OperationID != nil {
			if _, lookupErr := s.repo.GetByOperationID(ctx, *op.OperationID); lookupErr == nil {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateOperation, *op.OperationID)
			}
		}
		return nil, fmt.Errorf("failed to save operation: %w", err)
	}

	s.invalidateRecent(ctx)

	// reload so database defaults (timestamp, statuses) are populated
	saved, err := s.repo.GetByID(ctx, op.ID)
	if err != nil {
		s.log.Warn("failed to reload operation", zap.Uint("id", op.ID), zap.Error(err))
		return op, nil
	}

	s.log.Info("operation stored",
		zap.Uint("id", saved.ID),
		zap.String("device_id", saved.DeviceID),
		zap.Stringp("operation_id", saved.OperationID))
	return saved, nil
}

func buildOperation(in CreateOperationInput) (*models.Operation, error) {
	deviceID := strings.TrimSpace(in.DeviceID)
	before := strings.TrimSpace(in.BeforePath)
	after := strings.TrimSpace(in.AfterPath)
	if deviceID == "" || before == "" || after == "" {
		return nil, fmt.Errorf("%w: device_id, before_path and after_path are required", ErrInvalidOperation)
	}
	if in.StartTime != nil && in.EndTime != nil && in.EndTime.Before(*in.StartTime) {
		return nil, fmt.Errorf("%w: end_time is before start_time", ErrInvalidOperation)
	}

	op := &models.Operation{
		OperationID:     optional(in.OperationID),
		DeviceID:        deviceID,
		BeforePath:      before,
		AfterPath:       after,
		GasLevel:        in.GasLevel,
		GasStatus:       strings.TrimSpace(in.GasStatus),
		Location:        optional(in.Location),
		Area:            optional(in.Area),
		Division:        optional(in.Division),
		District:        optional(in.District),
		DurationSeconds: in.DurationSeconds,
		StartTime:       utc(in.StartTime),
		EndTime:         utc(in.EndTime),
	}

	if op.Location != nil {
		op.Latitude, op.Longitude = parseCoordinates(*op.Location)
	}
	return op, nil
}

// parseCoordinates reads {"latitude":..,"longitude":..}. Free-text
// locations yield no coordinates.
func parseCoordinates(location string) (lat, lng *float64) {
	var point struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	}
	if err := json.Unmarshal([]byte(location), &point); err != nil {
		return nil, nil
	}
	return point.Latitude, point.Longitude
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func (s *operationService) Recent(ctx context.Context, limit int) ([]models.Operation, error) {
	limit = repository.ClampLimit(limit)
	key := fmt.Sprintf(recentCacheKey, limit)

	if s.cache != nil {
		var cached []models.Operation
		err := s.cache.GetJSON(ctx, key, &cached)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, repository.ErrCacheMiss) {
			s.log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		}
	}

	ops, err := s.repo.GetLatest(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load operations: %w", err)
	}
	if ops == nil {
		ops = []models.Operation{}
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, ops, s.cacheTTL); err != nil {
			s.log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return ops, nil
}

func (s *operationService) invalidateRecent(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeletePattern(ctx, recentCachePrefix); err != nil {
		s.log.Warn("cache invalidation failed", zap.Error(err))
	}
}

func (s *operationService) Get(ctx context.Context, id uint) (*models.Operation, error) {
	op, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: id %d", ErrOperationNotFound, id)
		}
		return nil, err
	}
	return op, nil
}

func (s *operationService) Count(ctx context.Context) (int64, error) {
	return s.repo.Count(ctx)
}

func (s *operationService) Stats(ctx context.Context) (*models.OperationStats, error) {
	return s.repo.GetStats(ctx)
}

func (s *operationService) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// Export renders operations recorded in [from, to]. A zero to means now,
// a zero from means 24 hours before to.
func (s *operationService) Export(ctx context.Context, format string, from, to time.Time) (*ExportFile, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "excel" {
		format = "xlsx"
	}
	if format != "xlsx" && format != "csv" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	if to.IsZero() {
		to = time.Now().UTC()
	}
	if from.IsZero() {
		from = to.Add(-24 * time.Hour)
	}
	if to.Sub(from) > maxExportRange {
		from = to.Add(-maxExportRange)
	}

	ops, err := s.repo.GetByDateRange(ctx, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to get operations: %w", err)
	}
	if len(ops) == 0 {
		return nil, ErrNoData
	}

	var buf bytes.Buffer
	file := &ExportFile{Records: len(ops)}
	stamp := time.Now().UTC().Format("20060102_150405")

	switch format {
	case "csv":
		if err := utils.WriteCSV(&buf, ops); err != nil {
			return nil, fmt.Errorf("failed to write csv: %w", err)
		}
		file.Filename = fmt.Sprintf("operations_export_%s.csv", stamp)
		file.ContentType = "text/csv"
	case "xlsx":
		if err := utils.WriteExcel(&buf, ops); err != nil {
			return nil, fmt.Errorf("failed to write xlsx: %w", err)
		}
		file.Filename = fmt.Sprintf("operations_export_%s.xlsx", stamp)
		file.ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}

	file.Data = buf.Bytes()
	s.log.Info("operations exported",
		zap.String("format", format),
		zap.Int("records", file.Records),
		zap.Time("from", from),
		zap.Time("to", to))
	return file, nil
}
