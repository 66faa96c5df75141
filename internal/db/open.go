package db

import (
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const sqliteDefaultPragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

// Open connects to the database described by dsn. PostgreSQL URLs and keyword
// DSNs use the pgx-backed driver; file: URLs and *.db paths use pure-Go SQLite.
func Open(dsn string) (*gorm.DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("db: empty dsn")
	}

	cfg := &gorm.Config{
		TranslateError: true,
		Logger: logger.New(log.StandardLogger(), logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	}

	var dialector gorm.Dialector
	sqliteDSN := isSQLiteDSN(dsn)
	if sqliteDSN {
		dialector = sqlite.Open(buildSQLiteDSN(dsn))
	} else {
		dialector = postgres.Open(dsn)
	}

	conn, errOpen := gorm.Open(dialector, cfg)
	if errOpen != nil {
		return nil, fmt.Errorf("db: open: %w", errOpen)
	}
	sqlDB, errDB := conn.DB()
	if errDB != nil {
		return nil, fmt.Errorf("db: handle: %w", errDB)
	}
	if sqliteDSN {
		// SQLite allows a single writer.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	return conn, nil
}

// Close releases the underlying connection pool.
func Close(conn *gorm.DB) error {
	if conn == nil {
		return nil
	}
	sqlDB, errDB := conn.DB()
	if errDB != nil {
		return errDB
	}
	return sqlDB.Close()
}

func isSQLiteDSN(dsn string) bool {
	lower := strings.ToLower(dsn)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return false
	case strings.HasPrefix(lower, "file:"), lower == ":memory:":
		return true
	case strings.HasSuffix(lower, ".db"), strings.HasSuffix(lower, ".sqlite"), strings.HasSuffix(lower, ".sqlite3"):
		return true
	default:
		return false
	}
}

func buildSQLiteDSN(dsn string) string {
	if strings.Contains(dsn, "_pragma=") || dsn == ":memory:" {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&" + sqliteDefaultPragmas
	}
	return dsn + "?" + sqliteDefaultPragmas
}
