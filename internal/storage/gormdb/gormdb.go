// Package gormdb opens the SQLite database that holds strategies and backtest summaries.
package gormdb

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/newthinker/quarry/internal/core"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Open opens (creating if needed) the database at path and migrates models.
func Open(path string, models ...any) (*gorm.DB, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, core.WrapError(core.ErrConfigMissing, fmt.Errorf("database path is empty"))
	}

	dsn := "file::memory:"
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, core.WrapError(core.ErrPersistence, err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, core.WrapError(core.ErrPersistence, err)
	}
	if sqlDB, err := db.DB(); err == nil {
		// A single connection keeps ":memory:" databases shared across calls.
		sqlDB.SetMaxOpenConns(1)
	}
	if len(models) > 0 {
		if err := db.AutoMigrate(models...); err != nil {
			return nil, core.WrapError(core.ErrSchemaNotReady, err)
		}
	}
	return db, nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
