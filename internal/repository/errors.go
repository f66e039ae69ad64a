package repository

import (
	"edu_exam_backend/internal/util"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	mysqlDuplicateEntry     = 1062
	postgresUniqueViolation = "23505"
)

// IsUniqueViolation 判断错误是否为唯一约束冲突（MySQL / PostgreSQL / SQLite）
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == postgresUniqueViolation
	}

	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// notFound 将 gorm.ErrRecordNotFound 转换为业务层的 NotFound 错误
func notFound(err, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}

// lockForUpdate 对支持行锁的方言追加 FOR UPDATE；SQLite 以库级写锁串行化事务
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == util.DriverSQLite {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// lockForShare 共享锁，与 lockForUpdate 互斥但彼此兼容
func lockForShare(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == util.DriverSQLite {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "SHARE"})
}
