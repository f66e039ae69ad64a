package testutil

import (
	"edu_exam_backend/internal/config"
	"edu_exam_backend/pkg/database"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NewTestDB 每个测试独立的内存 SQLite 库，已完成迁移
func NewTestDB(t testing.TB) *gorm.DB {
	t.Helper()

	cfg := &config.DatabaseConfig{
		Driver:     "sqlite",
		SQLitePath: "file:" + uuid.NewString() + "?mode=memory&cache=shared",
		LogLevel:   "silent",
	}
	db, err := database.InitDB(cfg, true)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}
