package db

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/theace26/IP2A-Database-v2-sub006/config"
	"github.com/theace26/IP2A-Database-v2-sub006/internal/model"
)

// Init initializes the database connection, runs migrations, and installs
// the compliance-ledger protection triggers.
func Init(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		dialector = postgres.Open(cfg.DSN)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)

	log.Println("Running database migrations...")
	if err := Migrate(db, cfg.Driver); err != nil {
		return nil, err
	}
	log.Println("Database initialization complete.")
	return db, nil
}

// Migrate runs AutoMigrate for every model and applies the append-only
// DDL. Exposed separately so tests can migrate an in-memory database.
func Migrate(db *gorm.DB, driver string) error {
	if err := db.AutoMigrate(
		&model.Book{},
		&model.Registration{},
		&model.LaborRequest{},
		&model.Bid{},
		&model.Dispatch{},
		&model.Blackout{},
		&model.ActivityRecord{},
		&model.ComplianceRecord{},
	); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}
	if err := applyImmutabilityDDL(db, driver); err != nil {
		return fmt.Errorf("failed to install compliance triggers: %w", err)
	}
	return nil
}

// applyImmutabilityDDL makes compliance_records append-only at the
// storage layer: UPDATE and DELETE are rejected by the database itself,
// not just by application convention.
func applyImmutabilityDDL(db *gorm.DB, driver string) error {
	var ddls []string
	if driver == "sqlite" {
		ddls = []string{
			`CREATE TRIGGER IF NOT EXISTS compliance_no_update
			 BEFORE UPDATE ON compliance_records
			 BEGIN SELECT RAISE(ABORT, 'compliance records are immutable'); END;`,
			`CREATE TRIGGER IF NOT EXISTS compliance_no_delete
			 BEFORE DELETE ON compliance_records
			 BEGIN SELECT RAISE(ABORT, 'compliance records are immutable'); END;`,
		}
	} else {
		ddls = []string{
			`CREATE OR REPLACE FUNCTION reject_compliance_mutation() RETURNS trigger AS $$
			 BEGIN RAISE EXCEPTION 'compliance records are immutable'; END;
			 $$ LANGUAGE plpgsql;`,
			`DROP TRIGGER IF EXISTS compliance_no_update ON compliance_records;`,
			`CREATE TRIGGER compliance_no_update BEFORE UPDATE ON compliance_records
			 FOR EACH ROW EXECUTE FUNCTION reject_compliance_mutation();`,
			`DROP TRIGGER IF EXISTS compliance_no_delete ON compliance_records;`,
			`CREATE TRIGGER compliance_no_delete BEFORE DELETE ON compliance_records
			 FOR EACH ROW EXECUTE FUNCTION reject_compliance_mutation();`,
		}
	}

	for _, ddl := range ddls {
		if err := db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("DDL failed on %q: %w", ddl, err)
		}
	}
	return nil
}
