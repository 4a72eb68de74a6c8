package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"shudh/internal/metrics"
	"shudh/internal/middleware"
	"shudh/internal/repository"
	"shudh/internal/service"
)

// tickerWorker calls run once on Start and then on every tick until Stop.
type tickerWorker struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context) error
	log      *zap.Logger
	stopChan chan struct{}
	stopOnce sync.Once
	onResult func(err error)
}

func (w *tickerWorker) Name() string { return w.name }

func (w *tickerWorker) Start() {
	w.log.Info("worker started", zap.Duration("interval", w.interval))

	w.tick()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.tick()
		case <-w.stopChan:
			w.log.Info("worker stopped")
			return
		}
	}
}

func (w *tickerWorker) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
}

func (w *tickerWorker) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// abort the in-flight run when the worker is stopped
	go func() {
		select {
		case <-w.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	err := w.run(ctx)
	if err != nil {
		w.log.Warn("worker run failed", zap.Error(err))
	}
	if w.onResult != nil {
		w.onResult(err)
	}
}

func newTickerWorker(name string, interval time.Duration, log *zap.Logger, run func(ctx context.Context) error) *tickerWorker {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &tickerWorker{
		name:     name,
		interval: interval,
		run:      run,
		log:      log.Named("worker").With(zap.String("worker", name)),
		stopChan: make(chan struct{}),
	}
}

// NewCacheWarmWorker keeps the default recent-operations list in the cache
// so /api/data rarely hits the database.
func NewCacheWarmWorker(svc service.OperationService, interval time.Duration, m *metrics.Metrics, log *zap.Logger) Worker {
	w := newTickerWorker("cache-warm", interval, log, func(ctx context.Context) error {
		_, err := svc.Recent(ctx, repository.DefaultLimit)
		return err
	})
	if m != nil {
		w.onResult = func(err error) {
			result := "ok"
			if err != nil {
				result = "error"
			}
			m.CacheWarmRuns.WithLabelValues(result).Inc()
		}
	}
	return w
}

// NewLimiterCleanupWorker evicts per-IP rate limiters of idle clients.
func NewLimiterCleanupWorker(limiter *middleware.IPRateLimiter, interval time.Duration, log *zap.Logger) Worker {
	var w *tickerWorker
	w = newTickerWorker("limiter-cleanup", interval, log, func(ctx context.Context) error {
		if removed := limiter.Cleanup(); removed > 0 {
			w.log.Debug("evicted idle rate limiters", zap.Int("removed", removed))
		}
		return nil
	})
	return w
}
