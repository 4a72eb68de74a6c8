package database

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

const OperationsTable = "operations"

const createOperationsTablePostgres = `
CREATE TABLE IF NOT EXISTS operations (
	id               SERIAL PRIMARY KEY,
	operation_id     VARCHAR(255) UNIQUE,
	device_id        VARCHAR(255) NOT NULL,
	before_path      TEXT NOT NULL,
	after_path       TEXT NOT NULL,
	gas_level        DECIMAL(10,3),
	location         TEXT,
	latitude         DECIMAL(10,6),
	longitude        DECIMAL(10,6),
	duration_seconds INTEGER,
	area             VARCHAR(255),
	division         VARCHAR(255),
	district         VARCHAR(255),
	start_time       TIMESTAMP WITH TIME ZONE,
	end_time         TIMESTAMP WITH TIME ZONE,
	operation_status VARCHAR(50) DEFAULT 'completed',
	gas_status       VARCHAR(20) DEFAULT 'normal',
	"timestamp"      TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
);`

// MySQL has no CREATE INDEX IF NOT EXISTS, so the index is declared inline.
const createOperationsTableMySQL = "CREATE TABLE IF NOT EXISTS operations (" + `
	id               BIGINT AUTO_INCREMENT PRIMARY KEY,
	operation_id     VARCHAR(255) UNIQUE,
	device_id        VARCHAR(255) NOT NULL,
	before_path      TEXT NOT NULL,
	after_path       TEXT NOT NULL,
	gas_level        DECIMAL(10,3),
	location         TEXT,
	latitude         DECIMAL(10,6),
	longitude        DECIMAL(10,6),
	duration_seconds INT,
	area             VARCHAR(255),
	division         VARCHAR(255),
	district         VARCHAR(255),
	start_time       DATETIME(6) NULL,
	end_time         DATETIME(6) NULL,
	operation_status VARCHAR(50) DEFAULT 'completed',
	gas_status       VARCHAR(20) DEFAULT 'normal',
	` + "`timestamp`" + ` TIMESTAMP NULL DEFAULT CURRENT_TIMESTAMP,
	INDEX idx_operations_timestamp (` + "`timestamp`" + `)
);`

const createOperationsTableSQLite = `
CREATE TABLE IF NOT EXISTS operations (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	operation_id     TEXT UNIQUE,
	device_id        TEXT NOT NULL,
	before_path      TEXT NOT NULL,
	after_path       TEXT NOT NULL,
	gas_level        REAL,
	location         TEXT,
	latitude         REAL,
	longitude        REAL,
	duration_seconds INTEGER,
	area             TEXT,
	division         TEXT,
	district         TEXT,
	start_time       DATETIME,
	end_time         DATETIME,
	operation_status TEXT DEFAULT 'completed',
	gas_status       TEXT DEFAULT 'normal',
	timestamp        DATETIME DEFAULT CURRENT_TIMESTAMP
);`

const createTimestampIndex = `CREATE INDEX IF NOT EXISTS idx_operations_timestamp ON operations ("timestamp" DESC)`

// SchemaStatements returns the idempotent DDL for the given gorm dialect.
func SchemaStatements(dialect string) ([]string, error) {
	switch dialect {
	case "postgres":
		return []string{createOperationsTablePostgres, createTimestampIndex}, nil
	case "mysql":
		return []string{createOperationsTableMySQL}, nil
	case "sqlite":
		return []string{createOperationsTableSQLite, createTimestampIndex}, nil
	default:
		return nil, fmt.Errorf("no schema for database dialect %q", dialect)
	}
}

// Migrate creates the operations table and its index if they do not exist.
// Each statement runs on its own in autocommit mode; running it again is a
// no-op.
func Migrate(ctx context.Context, db *gorm.DB) error {
	statements, err := SchemaStatements(db.Dialector.Name())
	if err != nil {
		return err
	}

	for _, stmt := range statements {
		if err := db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// CountOperations returns the number of rows in the operations table.
func CountOperations(ctx context.Context, db *gorm.DB) (int64, error) {
	var count int64
	if err := db.WithContext(ctx).Table(OperationsTable).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
