package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/DeRuina/timberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"

	"shudh/internal/config"
)

// New builds the application logger: a stdout core and, when LOG_FILE_PATH
// is set, a JSON core writing to a rotating file. The returned cleanup
// flushes the logger and closes the file.
func New(cfg *config.Config) (*zap.Logger, func(), error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		return nil, nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.Log.Level, err)
	}

	consoleEncoderCfg := zap.NewDevelopmentEncoderConfig()
	consoleEncoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	consoleEncoderCfg.EncodeCaller = zapcore.ShortCallerEncoder

	fileEncoderCfg := zap.NewProductionEncoderConfig()
	fileEncoderCfg.TimeKey = "timestamp"
	fileEncoderCfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	fileEncoderCfg.EncodeCaller = zapcore.ShortCallerEncoder

	var stdoutEncoder zapcore.Encoder
	switch cfg.Log.Format {
	case "json":
		stdoutEncoder = zapcore.NewJSONEncoder(fileEncoderCfg)
	case "console", "":
		consoleEncoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		stdoutEncoder = zapcore.NewConsoleEncoder(consoleEncoderCfg)
	default:
		return nil, nil, fmt.Errorf("invalid LOG_FORMAT %q: use console or json", cfg.Log.Format)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(stdoutEncoder, zapcore.Lock(os.Stdout), level),
	}

	var rotator *timberjack.Logger
	if cfg.Log.FilePath != "" {
		if dir := filepath.Dir(cfg.Log.FilePath); dir != "." && dir != "/" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
			}
		}
		rotator = &timberjack.Logger{
			Filename:         cfg.Log.FilePath,
			MaxSize:          cfg.Log.MaxSize,
			MaxBackups:       cfg.Log.MaxBackups,
			MaxAge:           cfg.Log.MaxAge,
			Compress:         cfg.Log.Compress,
			LocalTime:        true,
			RotationInterval: 24 * time.Hour,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileEncoderCfg), zapcore.AddSync(rotator), level))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	cleanup := func() {
		// stdout sync fails on some terminals, nothing useful to do about it
		_ = logger.Sync()
		if rotator != nil {
			_ = rotator.Close()
		}
	}
	return logger, cleanup, nil
}

// GormLogger routes gorm's SQL logging through zap at the given level
// (silent, error, warn, info).
func GormLogger(log *zap.Logger, level string) (gormlogger.Interface, error) {
	var lvl gormlogger.LogLevel
	switch level {
	case "silent":
		lvl = gormlogger.Silent
	case "error":
		lvl = gormlogger.Error
	case "warn", "":
		lvl = gormlogger.Warn
	case "info":
		lvl = gormlogger.Info
	default:
		return nil, fmt.Errorf("unknown gorm log level: %s", level)
	}

	std := zap.NewStdLog(log.Named("gorm").WithOptions(zap.AddCallerSkip(3)))
	return gormlogger.New(std, gormlogger.Config{
		SlowThreshold:             500 * time.Millisecond,
		LogLevel:                  lvl,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	}), nil
}
