package service

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gorm.io/gorm/logger"

	"shudh/internal/models"
	"shudh/internal/repository"
	"shudh/pkg/database"
)

type fixture struct {
	svc  OperationService
	repo repository.OperationRepository
	mr   *miniredis.Miniredis
}

func newFixture(t *testing.T, withCache bool) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := database.Connect(ctx, database.Config{
		URL:    "sqlite://:memory:",
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(ctx, db))
	t.Cleanup(func() { _ = database.Close(db) })

	f := &fixture{repo: repository.NewOperationRepository(db)}

	var cache repository.CacheRepository
	if withCache {
		f.mr = miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: f.mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		cache = repository.NewCacheRepository(client)
	}

	f.svc = NewOperationService(f.repo, cache, time.Minute, zap.NewNop())
	return f
}

func input(device string) CreateOperationInput {
	return CreateOperationInput{
		DeviceID:   device,
		BeforePath: "/images/before.jpg",
		AfterPath:  "/images/after.jpg",
	}
}

func TestCreate_PopulatesDefaults(t *testing.T) {
	f := newFixture(t, false)

	op, err := f.svc.Create(context.Background(), input("robot-1"))
	require.NoError(t, err)
	assert.NotZero(t, op.ID)
	assert.Equal(t, "completed", op.Status)
	assert.Equal(t, "normal", op.GasStatus)
	assert.False(t, op.Timestamp.IsZero())
	assert.Nil(t, op.OperationID)
	assert.Nil(t, op.Location)
}

func TestCreate_ParsesLocationCoordinates(t *testing.T) {
	f := newFixture(t, false)

	in := input("robot-1")
	in.Location = `{"latitude": 23.8103, "longitude": 90.4125}`
	op, err := f.svc.Create(context.Background(), in)
	require.NoError(t, err)
	require.NotNil(t, op.Latitude)
	require.NotNil(t, op.Longitude)
	assert.InDelta(t, 23.8103, *op.Latitude, 1e-6)
	assert.InDelta(t, 90.4125, *op.Longitude, 1e-6)

	in = input("robot-2")
	in.Location = "Mirpur 10, Dhaka"
	op, err = f.svc.Create(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "Mirpur 10, Dhaka", *op.Location)
	assert.Nil(t, op.Latitude)
}

func TestCreate_RejectsInvalidInput(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, CreateOperationInput{DeviceID: "robot-1", BeforePath: "b"})
	assert.ErrorIs(t, err, ErrInvalidOperation)

	start := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(-time.Minute)
	in := input("robot-1")
	in.StartTime, in.EndTime = &start, &end
	_, err = f.svc.Create(ctx, in)
	assert.ErrorIs(t, err, ErrInvalidOperation)

	count, err := f.svc.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)
}

func TestCreate_DuplicateOperationID(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	in := input("robot-1")
	in.OperationID = "op-7"
	_, err := f.svc.Create(ctx, in)
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, in)
	assert.ErrorIs(t, err, ErrDuplicateOperation)

	count, err := f.svc.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestGet_NotFound(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.svc.Get(context.Background(), 42)
	assert.ErrorIs(t, err, ErrOperationNotFound)
}

func TestRecent_ReadThroughCacheInvalidatedOnCreate(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, input("robot-1"))
	require.NoError(t, err)

	ops, err := f.svc.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.True(t, f.mr.Exists("operations:recent:10"))

	// a row written behind the service's back is not visible until invalidation
	require.NoError(t, f.repo.Create(ctx, &models.Operation{DeviceID: "robot-x", BeforePath: "b", AfterPath: "a"}))
	ops, err = f.svc.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, ops, 1, "served from cache")

	_, err = f.svc.Create(ctx, input("robot-2"))
	require.NoError(t, err)
	assert.False(t, f.mr.Exists("operations:recent:10"))

	ops, err = f.svc.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, ops, 3)
}

func TestRecent_CacheUnavailableFallsBackToDatabase(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, input("robot-1"))
	require.NoError(t, err)
	f.mr.Close()

	ops, err := f.svc.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, ops, 1)
}

func TestRecent_EmptyIsNotNil(t *testing.T) {
	f := newFixture(t, false)

	ops, err := f.svc.Recent(context.Background(), 5)
	require.NoError(t, err)
	assert.NotNil(t, ops)
	assert.Empty(t, ops)
}

func TestExport(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, f.repo.Create(ctx, &models.Operation{
			DeviceID:   "robot-1",
			BeforePath: "b",
			AfterPath:  "a",
			Timestamp:  base.Add(time.Duration(i) * time.Hour),
		}))
	}

	file, err := f.svc.Export(ctx, "xlsx", base.Add(-time.Minute), base.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, file.Records)
	assert.Contains(t, file.Filename, ".xlsx")

	wb, err := excelize.OpenReader(bytes.NewReader(file.Data))
	require.NoError(t, err)
	defer wb.Close()
	rows, err := wb.GetRows("Operations")
	require.NoError(t, err)
	assert.Len(t, rows, 4)

	file, err = f.svc.Export(ctx, "CSV", base, base.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, file.Records)
	assert.Equal(t, "text/csv", file.ContentType)

	_, err = f.svc.Export(ctx, "pdf", base, base.Add(time.Hour))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = f.svc.Export(ctx, "csv", base.Add(-48*time.Hour), base.Add(-24*time.Hour))
	assert.ErrorIs(t, err, ErrNoData)
}

func TestStats(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	gas := 12.0
	in := input("robot-1")
	in.GasLevel = &gas
	in.GasStatus = "warning"
	_, err := f.svc.Create(ctx, in)
	require.NoError(t, err)

	stats, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Count)
	assert.Equal(t, map[string]int64{"warning": 1}, stats.ByGasStatus)
	require.NoError(t, f.svc.Ping(ctx))
}
