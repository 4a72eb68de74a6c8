package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	goredis "github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"shudh/internal/config"
	"shudh/internal/handlers"
	"shudh/internal/metrics"
	"shudh/internal/middleware"
	"shudh/internal/repository"
	"shudh/internal/service"
	"shudh/internal/storage"
	"shudh/internal/worker"
)

const (
	// KeepAliveTimeout is how long idle keep-alive connections stay open.
	KeepAliveTimeout = 120 * time.Second

	ShutdownTimeout = 10 * time.Second

	imagesURLPrefix = "/images"
)

// Deps are the long-lived resources the server is built on. Redis may be
// nil; the cache and its stats are then disabled.
type Deps struct {
	DB     *gorm.DB
	Redis  *goredis.Client
	Logger *zap.Logger
}

type Server struct {
	cfg        *config.Config
	log        *zap.Logger
	engine     *gin.Engine
	httpServer *http.Server
	scheduler  *worker.Scheduler
	metrics    *metrics.Metrics
}

func New(cfg *config.Config, deps Deps) *Server {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	if cfg.App.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	m := metrics.New()

	var cacheRepo repository.CacheRepository
	if deps.Redis != nil {
		cacheRepo = repository.NewCacheRepository(deps.Redis)
	}
	operationService := service.NewOperationService(
		repository.NewOperationRepository(deps.DB),
		cacheRepo,
		cfg.Redis.TTL,
		log,
	)

	scheduler := worker.NewScheduler(log)
	if cacheRepo != nil && cfg.Redis.WarmInterval > 0 {
		scheduler.AddWorker(worker.NewCacheWarmWorker(operationService, cfg.Redis.WarmInterval, m, log))
	}

	r := gin.New()
	r.MaxMultipartMemory = int64(cfg.Storage.MaxUploadMB) << 20
	r.Use(middleware.RequestLogger(log))
	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		middleware.Logger(c).Error("panic recovered", zap.Any("panic", recovered), zap.Stack("stack"))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}))
	r.Use(cors.New(corsConfig(cfg.App.CORSAllowOrigins)))
	r.Use(m.GinMiddleware())

	if cfg.RateLimit.RequestsPerSecond > 0 {
		limiter := middleware.NewIPRateLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.Burst)
		r.Use(middleware.RateLimit(limiter, "/", "/api/health", "/metrics"))
		scheduler.AddWorker(worker.NewLimiterCleanupWorker(limiter, 5*time.Minute, log))
		log.Info("rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst))
	}

	operationHandler := handlers.NewOperationHandler(
		operationService,
		storage.NewStore(cfg.Storage.ImagesDir, imagesURLPrefix),
		m,
		int64(cfg.Storage.MaxUploadMB)<<20,
	)
	healthHandler := handlers.NewHealthHandler(operationService, deps.Redis, deps.DB.Dialector.Name())

	r.GET("/", healthHandler.Root)
	r.GET("/metrics", gin.WrapH(m.Handler()))
	r.Static(imagesURLPrefix, cfg.Storage.ImagesDir)

	api := r.Group("/api")
	api.GET("/health", healthHandler.Health)
	api.GET("/stats", healthHandler.Stats)
	api.POST("/upload", operationHandler.Upload)
	api.GET("/data", operationHandler.List)
	api.GET("/operations/export", operationHandler.Export)
	api.GET("/operations/:id", operationHandler.Get)

	return &Server{
		cfg:    cfg,
		log:    log,
		engine: r,
		httpServer: &http.Server{
			Addr:              cfg.Addr(),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       60 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       KeepAliveTimeout,
		},
		scheduler: scheduler,
		metrics:   m,
	}
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders: []string{"Content-Length", "Content-Disposition", middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cfg
}

func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) HTTPServer() *http.Server { return s.httpServer }

// Run listens on the configured address and serves until ctx is cancelled,
// then drains connections for up to ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.scheduler.Start()
	defer s.scheduler.Stop()

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server listening",
			zap.String("addr", ln.Addr().String()),
			zap.Duration("keep_alive_timeout", s.httpServer.IdleTimeout))
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	s.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}

	s.log.Info("server exited properly")
	return nil
}
