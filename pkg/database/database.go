package database

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var ErrInvalidDatabaseURL = errors.New("invalid DATABASE_URL")

type Config struct {
	URL          string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	Logger       logger.Interface
}

// Connect opens a gorm connection for the database named by cfg.URL and
// verifies it with a ping. The URL scheme picks the driver: postgres,
// postgresql, mysql, sqlite, sqlite3 or file.
func Connect(ctx context.Context, config Config) (*gorm.DB, error) {
	dialector, err := Dialector(config)
	if err != nil {
		return nil, err
	}

	gormLogger := config.Logger
	if gormLogger == nil {
		gormLogger = logger.Default.LogMode(logger.Warn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLogger,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	if dialector.Name() == "sqlite" {
		// every new connection to an in-memory sqlite database is a fresh database
		sqlDB.SetMaxOpenConns(1)
	} else {
		if config.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(config.MaxOpenConns)
		}
		if config.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(config.MaxIdleConns)
		}
	}
	sqlDB.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Close releases the pool behind db.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Dialector resolves the gorm dialector for cfg.URL without connecting.
func Dialector(config Config) (gorm.Dialector, error) {
	raw := strings.TrimSpace(config.URL)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidDatabaseURL)
	}

	lower := strings.ToLower(raw)
	switch {
	case strings.HasPrefix(lower, "sqlite://"), strings.HasPrefix(lower, "sqlite3://"):
		path := raw[strings.Index(raw, "://")+3:]
		if path == "" {
			return nil, fmt.Errorf("%w: sqlite URL has no path", ErrInvalidDatabaseURL)
		}
		return sqlite.Open(path), nil
	case strings.HasPrefix(lower, "file:"):
		return sqlite.Open(raw), nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDatabaseURL, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "postgres", "postgresql":
		dsn, err := postgresDSN(u, config.SSLMode)
		if err != nil {
			return nil, err
		}
		return postgres.Open(dsn), nil
	case "mysql":
		dsn, err := mysqlDSN(u)
		if err != nil {
			return nil, err
		}
		return mysql.Open(dsn), nil
	case "":
		return nil, fmt.Errorf("%w: missing scheme", ErrInvalidDatabaseURL)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidDatabaseURL, u.Scheme)
	}
}

func postgresDSN(u *url.URL, sslMode string) (string, error) {
	if u.Host == "" {
		return "", fmt.Errorf("%w: postgres URL has no host", ErrInvalidDatabaseURL)
	}
	if sslMode != "" {
		q := u.Query()
		if q.Get("sslmode") == "" {
			q.Set("sslmode", sslMode)
			u.RawQuery = q.Encode()
		}
	}
	return u.String(), nil
}

func mysqlDSN(u *url.URL) (string, error) {
	if u.Host == "" {
		return "", fmt.Errorf("%w: mysql URL has no host", ErrInvalidDatabaseURL)
	}

	cfg := mysqldriver.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = u.Host
	if u.Port() == "" {
		cfg.Addr = u.Host + ":3306"
	}
	if u.User != nil {
		cfg.User = u.User.Username()
		cfg.Passwd, _ = u.User.Password()
	}
	cfg.DBName = strings.TrimPrefix(u.Path, "/")
	cfg.ParseTime = true

	for key, values := range u.Query() {
		if len(values) == 0 {
			continue
		}
		if cfg.Params == nil {
			cfg.Params = map[string]string{}
		}
		cfg.Params[key] = values[0]
	}

	return cfg.FormatDSN(), nil
}
