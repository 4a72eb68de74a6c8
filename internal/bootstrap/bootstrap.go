package bootstrap

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"shudh/internal/storage"
	"shudh/pkg/database"
)

// Step is one stage of process startup. Required steps abort the sequence
// on failure even in best-effort mode.
type Step struct {
	Name     string
	Run      func(ctx context.Context) error
	Required bool
}

// Runner executes steps strictly in order, once.
type Runner struct {
	steps      []Step
	bestEffort bool
	log        *zap.Logger
}

// NewRunner returns a fail-fast runner unless bestEffort is set, in which
// case failed optional steps are logged and the sequence continues.
func NewRunner(log *zap.Logger, bestEffort bool) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		bestEffort: bestEffort,
		log:        log.Named("bootstrap"),
	}
}

func (r *Runner) Add(steps ...Step) *Runner {
	r.steps = append(r.steps, steps...)
	return r
}

func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("bootstrap starting", zap.Int("steps", len(r.steps)), zap.Bool("best_effort", r.bestEffort))

	var failed []string
	for i, step := range r.steps {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "bootstrap interrupted")
		}

		log := r.log.With(zap.String("step", step.Name), zap.Int("index", i+1))
		log.Info("step started")
		start := time.Now()

		err := step.Run(ctx)
		elapsed := time.Since(start)
		if err == nil {
			log.Info("step finished", zap.Duration("duration", elapsed))
			continue
		}

		if step.Required || !r.bestEffort {
			log.Error("step failed", zap.Duration("duration", elapsed), zap.Error(err))
			return errors.Wrapf(err, "bootstrap step %q failed", step.Name)
		}
		log.Warn("step failed, continuing", zap.Duration("duration", elapsed), zap.Error(err))
		failed = append(failed, step.Name)
	}

	if len(failed) > 0 {
		r.log.Warn("bootstrap finished with failed steps", zap.Strings("failed", failed))
	}
	return nil
}

// RequiredModules are the modules the server cannot run without.
var RequiredModules = []string{
	"github.com/gin-gonic/gin",
	"gorm.io/gorm",
	"github.com/go-redis/redis/v8",
	"github.com/xuri/excelize/v2",
	"go.uber.org/zap",
}

// DependenciesStep checks that the binary was linked against every module in
// required. Binaries built without module information only log a warning.
func DependenciesStep(log *zap.Logger, required []string) Step {
	return Step{
		Name: "dependencies",
		Run: func(context.Context) error {
			info, ok := debug.ReadBuildInfo()
			if !ok || info.Main.Path == "" {
				log.Warn("build info unavailable, skipping dependency check")
				return nil
			}
			return checkModules(info, required, log)
		},
	}
}

func checkModules(info *debug.BuildInfo, required []string, log *zap.Logger) error {
	linked := make(map[string]string, len(info.Deps)+1)
	linked[info.Main.Path] = info.Main.Version
	for _, dep := range info.Deps {
		if dep.Replace != nil {
			linked[dep.Path] = dep.Replace.Version
			continue
		}
		linked[dep.Path] = dep.Version
	}

	var missing []string
	for _, path := range required {
		version, ok := linked[path]
		if !ok {
			missing = append(missing, path)
			continue
		}
		log.Debug("dependency present", zap.String("module", path), zap.String("version", version))
	}
	if len(missing) > 0 {
		return errors.Errorf("missing dependencies: %v", missing)
	}
	log.Info("dependencies present",
		zap.String("module", info.Main.Path),
		zap.String("go_version", info.GoVersion),
		zap.Int("deps", len(info.Deps)))
	return nil
}

func ImagesDirStep(dir string) Step {
	return Step{
		Name: "images-dir",
		Run: func(context.Context) error {
			return storage.EnsureDir(dir)
		},
	}
}

// SchemaStep opens a dedicated connection, creates the operations table if
// it is missing and closes the connection again.
func SchemaStep(cfg database.Config, log *zap.Logger) Step {
	return Step{
		Name: "schema",
		Run: func(ctx context.Context) error {
			if cfg.Logger == nil {
				cfg.Logger = gormlogger.Default.LogMode(gormlogger.Silent)
			}
			db, err := database.Connect(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := database.Close(db); err != nil {
					log.Warn("failed to close schema connection", zap.Error(err))
				}
			}()

			if err := database.Migrate(ctx, db); err != nil {
				return err
			}

			count, err := database.CountOperations(ctx, db)
			if err != nil {
				return errors.Wrap(err, "failed to count operations")
			}
			log.Info("schema ready",
				zap.String("dialect", db.Dialector.Name()),
				zap.Int64("operations", count))
			return nil
		},
	}
}

// ServeStep wraps the long-running server; it is always required.
func ServeStep(serve func(ctx context.Context) error) Step {
	return Step{Name: "serve", Run: serve, Required: true}
}

// Sequence is the standard startup order: dependencies, images directory,
// schema, then the server.
func Sequence(log *zap.Logger, bestEffort bool, imagesDir string, db database.Config, serve func(ctx context.Context) error) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return NewRunner(log, bestEffort).Add(
		DependenciesStep(log, RequiredModules),
		ImagesDirStep(imagesDir),
		SchemaStep(db, log),
		ServeStep(serve),
	)
}
