package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"shudh/internal/middleware"
	"shudh/internal/models"
	"shudh/internal/service"
)

type fakeService struct {
	service.OperationService
	recentCalls atomic.Int32
	limits      chan int
	err         error
}

func (f *fakeService) Recent(_ context.Context, limit int) ([]models.Operation, error) {
	f.recentCalls.Add(1)
	select {
	case f.limits <- limit:
	default:
	}
	return nil, f.err
}

func TestScheduler_RunsAndStopsWorkers(t *testing.T) {
	svc := &fakeService{limits: make(chan int, 1)}

	s := NewScheduler(zap.NewNop())
	s.AddWorker(NewCacheWarmWorker(svc, 10*time.Millisecond, nil, zap.NewNop()))
	s.Start()
	assert.True(t, s.IsRunning())

	select {
	case limit := <-svc.limits:
		assert.Equal(t, 100, limit)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not run")
	}

	require.Eventually(t, func() bool { return svc.recentCalls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)

	s.Stop()
	assert.False(t, s.IsRunning())

	calls := svc.recentCalls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, svc.recentCalls.Load(), "no runs after stop")

	s.Stop()
	s.Start()
	assert.False(t, s.IsRunning(), "a stopped scheduler cannot be restarted")
}

func TestCacheWarmWorker_ErrorsDoNotStopTheLoop(t *testing.T) {
	svc := &fakeService{limits: make(chan int, 1), err: errors.New("database down")}

	w := NewCacheWarmWorker(svc, 5*time.Millisecond, nil, nil)
	done := make(chan struct{})
	go func() {
		w.Start()
		close(done)
	}()

	require.Eventually(t, func() bool { return svc.recentCalls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	w.Stop()
	w.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	assert.Equal(t, "cache-warm", w.Name())
}

func TestLimiterCleanupWorker(t *testing.T) {
	limiter := middleware.NewIPRateLimiter(rate.Limit(1), 1)
	limiter.GetLimiter("10.0.0.1")

	w := NewLimiterCleanupWorker(limiter, time.Hour, zap.NewNop())
	go w.Start()
	t.Cleanup(w.Stop)

	// first run happens immediately; the limiter is fresh so nothing is evicted
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, limiter.Len())
}
