package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ZJUSCT/CSArena/internal/database/models"
	"go.uber.org/zap"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Init opens the configured store and migrates the schema.
func Init(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "", "sqlite":
		if err := ensureSqliteDir(dsn); err != nil {
			return nil, err
		}
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: newLogger()})
	if err != nil {
		return nil, err
	}

	if driver != "postgres" {
		// sqlite allows a single writer; one connection keeps transactions
		// from failing with SQLITE_BUSY and serializes them in process.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// zapWriter hands gorm's log lines to the global zap logger.
type zapWriter struct{}

func (zapWriter) Printf(format string, args ...interface{}) {
	zap.S().Warnf(format, args...)
}

// newLogger reports slow queries and store errors. Missing rows are an
// expected answer for lookups such as the latest submission of a pair.
func newLogger() logger.Interface {
	return logger.New(zapWriter{}, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}

// Migrate auto-migrates the schema.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.JuryAssignment{},
		&models.Contest{},
		&models.Problem{},
		&models.Team{},
		&models.Submission{},
		&models.TeamScore{},
		&models.ContestScoreHistory{},
		&models.LeaderboardSnapshot{},
		&models.ControlOperation{},
	)
}

func ensureSqliteDir(dsn string) error {
	if dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		return nil
	}
	if _, err := os.Stat(dsn); os.IsNotExist(err) {
		zap.S().Infof("database file not found at '%s', creating directory for it.", dsn)
		// Ensure the directory for the database file exists.
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return err
		}
	}
	return nil
}
