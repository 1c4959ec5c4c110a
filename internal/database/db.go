package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"kartoteka-backend/internal/config"
	"kartoteka-backend/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Init opens the configured database, migrates it and publishes the handle
// in DB. Startup errors are fatal.
func Init(cfg *config.Config) *gorm.DB {
	db, err := Open(cfg.DatabaseDSN, cfg.LogLevel)
	if err != nil {
		log.Fatalf("could not connect to the database: %v", err)
	}
	if err := Migrate(db); err != nil {
		log.Fatalf("AutoMigrate failed: %v", err)
	}
	log.Printf("Database connected (%s). Migration complete.", db.Dialector.Name())
	DB = db
	return db
}

// Open picks the dialect from the DSN: "sqlite:<path>" or "file:<path>" use
// the pure-Go SQLite driver, anything else goes to Postgres.
func Open(dsn, level string) (*gorm.DB, error) {
	gcfg := &gorm.Config{
		Logger:         newLogger(level),
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	}

	switch {
	case strings.HasPrefix(dsn, "sqlite:"):
		return openSQLite(strings.TrimPrefix(dsn, "sqlite:"), gcfg)
	case strings.HasPrefix(dsn, "file:"):
		return openSQLite(dsn, gcfg)
	default:
		return gorm.Open(postgres.Open(dsn), gcfg)
	}
}

func openSQLite(path string, gcfg *gorm.Config) (*gorm.DB, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	dsn := path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_time_format=sqlite"
	db, err := gorm.Open(sqlite.Open(dsn), gcfg)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// one writer at a time; SQLite would return SQLITE_BUSY otherwise
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

func newLogger(level string) logger.Interface {
	lvl := logger.Warn
	switch level {
	case "silent":
		lvl = logger.Silent
	case "error":
		lvl = logger.Error
	case "info":
		lvl = logger.Info
	}
	return logger.New(log.New(os.Stdout, "\r\n", log.LstdFlags), logger.Config{
		SlowThreshold:             500 * time.Millisecond,
		LogLevel:                  lvl,
		IgnoreRecordNotFoundError: true,
	})
}

func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Product{},
		&models.LedgerEntry{},
		&models.Recipe{},
		&models.RecipeIngredient{},
		&models.NutritionalStandard{},
		&models.MealPlan{},
		&models.MealPlanDay{},
		&models.MealPlanMeal{},
		&models.MealPlanRecipe{},
		&models.Backup{},
		&models.AuditLog{},
	)
	if err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	return nil
}

// IsPostgres reports whether row locks and isolation levels are available.
func IsPostgres(db *gorm.DB) bool {
	return db.Dialector.Name() == "postgres"
}

// Transaction runs fn in one transaction at the given isolation level.
// SQLite has a single writer and snapshot reads already, so the level is
// only passed on to Postgres.
func Transaction(ctx context.Context, db *gorm.DB, level sql.IsolationLevel, fn func(tx *gorm.DB) error) error {
	if IsPostgres(db) && level != sql.LevelDefault {
		return db.WithContext(ctx).Transaction(fn, &sql.TxOptions{Isolation: level})
	}
	return db.WithContext(ctx).Transaction(fn)
}
