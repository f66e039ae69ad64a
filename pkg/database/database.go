package database

import (
	"edu_exam_backend/internal/config"
	"edu_exam_backend/internal/model"
	"edu_exam_backend/internal/util"
	"fmt"
	"log"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Dialector 根据配置选择数据库驱动
func Dialector(cfg *config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case util.DriverMySQL:
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=UTC",
			cfg.User,
			cfg.Password,
			cfg.Host,
			cfg.Port,
			cfg.DBName,
			cfg.Charset,
			cfg.ParseTime,
		)
		return mysql.Open(dsn), nil
	case util.DriverPostgres:
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
			cfg.Host,
			cfg.Port,
			cfg.User,
			cfg.Password,
			cfg.DBName,
		)
		return postgres.Open(dsn), nil
	case util.DriverSQLite:
		sep := "?"
		if strings.Contains(cfg.SQLitePath, "?") {
			sep = "&"
		}
		return sqlite.Open(cfg.SQLitePath + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"), nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
}

func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	}
	return logger.Warn
}

// InitDB 打开数据库连接；migrate 为 true 时自动迁移表结构
func InitDB(cfg *config.DatabaseConfig, migrate bool) (*gorm.DB, error) {
	dialector, err := Dialector(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(gormLogLevel(cfg.LogLevel)),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Database connection established (%s)", cfg.Driver)

	if cfg.Driver == util.DriverSQLite {
		// sqlite 单写者，限制连接数避免 database is locked
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if migrate {
		if err := AutoMigrate(db); err != nil {
			return nil, err
		}
		log.Println("Database migration completed")
	}

	return db, nil
}

// AutoMigrate 迁移全部模型
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(model.AllModels()...)
}
