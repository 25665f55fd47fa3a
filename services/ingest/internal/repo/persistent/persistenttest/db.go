// Package persistenttest opens throwaway SQLite databases with the ingest schema for tests.
package persistenttest

import (
	"path/filepath"
	"testing"

	"tok-ingest/services/ingest/internal/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "ingest.db") + "?_busy_timeout=5000&_foreign_keys=on"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql.DB: %v", err)
	}
	// One connection serializes SQLite writers; transactions keep theirs for their lifetime.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.AutoMigrate(&model.CacheAssetModel{}, &model.ProfileModel{}, &model.PostModel{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}
