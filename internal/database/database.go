package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/bookshelf/internal/entities"
)

// Driver identifies the SQL backend behind a Database.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// DriverFor picks the backend from a DATABASE_URL value.
func DriverFor(url string) Driver {
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		return DriverPostgres
	}
	return DriverSQLite
}

type Database struct {
	DB     *gorm.DB
	Driver Driver
}

// NewDatabase connects to url and migrates the schema.
func NewDatabase(url string, log *logrus.Logger) (*Database, error) {
	driver := DriverFor(url)

	var dialector gorm.Dialector
	switch driver {
	case DriverPostgres:
		// lib/pq registers itself as "postgres"; the gorm dialect sits on top of it.
		dialector = postgres.New(postgres.Config{DriverName: "postgres", DSN: url})
	default:
		dialector = sqlite.Open(sqliteDSN(url))
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.New(log, logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	database := &Database{DB: db, Driver: driver}
	if err := database.Migrate(); err != nil {
		return nil, err
	}

	log.WithField("driver", driver).Info("Database initialized successfully")

	return database, nil
}

// sqliteDSN turns a bare file path into a DSN with foreign keys enforced.
// Transactions take the write lock at BEGIN so a read-then-write waits out
// the busy timeout instead of failing with "database is locked" when a
// concurrent writer got there first.
func sqliteDSN(path string) string {
	if strings.HasPrefix(path, "file:") {
		return path
	}
	return fmt.Sprintf("file:%s?_foreign_keys=1&_busy_timeout=5000&_txlock=immediate", path)
}

// Migrate creates or updates all tables.
func (d *Database) Migrate() error {
	err := d.DB.AutoMigrate(
		&entities.Account{},
		&entities.Book{},
		&entities.AuditEvent{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// SQLDB exposes the pooled connection, e.g. for the session store.
func (d *Database) SQLDB() (*sql.DB, error) {
	return d.DB.DB()
}

// Ping checks database connectivity.
func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
