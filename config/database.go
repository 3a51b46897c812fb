package config

import (
	"database/sql"
	"fmt"
	"github.com/glebarez/sqlite"
	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"strings"
)

const sqlitePragmas = "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

// NewDatabase opens the store named by a DATABASE_URL style DSN. postgres://
// and postgresql:// go through lib/pq; sqlite:// opens a local file, which is
// also the fallback when no server database is configured.
func NewDatabase(dsn string, logLevel logger.LogLevel) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	}

	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, err
		}
		gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), gormCfg)
		if err != nil {
			db.Close()
			return nil, err
		}
		return gormDB, nil

	case strings.HasPrefix(dsn, "sqlite://"):
		gormDB, err := gorm.Open(sqlite.Open(SQLitePath(dsn)), gormCfg)
		if err != nil {
			return nil, err
		}
		sqlDB, err := gormDB.DB()
		if err != nil {
			return nil, err
		}
		// one writer at a time avoids SQLITE_BUSY under the worker pool
		sqlDB.SetMaxOpenConns(1)
		return gormDB, nil
	}

	return nil, fmt.Errorf("unsupported database url %q", dsn)
}

// SQLitePath turns sqlite://file.db, sqlite:///file.db and sqlite:////abs/file.db
// into a driver DSN.
func SQLitePath(dsn string) string {
	path := strings.TrimPrefix(dsn, "sqlite://")
	if strings.HasPrefix(path, "/") {
		path = path[1:]
	}
	if path == ":memory:" {
		return path
	}
	if strings.Contains(path, "?") {
		return path + "&" + sqlitePragmas
	}
	return path + "?" + sqlitePragmas
}
