package db

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"queue-ticketing-backend/config"
	"queue-ticketing-backend/internal/model"
)

// Init initializes the database connection and runs migrations.
func Init(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
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
	if err := db.AutoMigrate(Models()...); err != nil {
		return nil, fmt.Errorf("automigrate failed: %w", err)
	}

	log.Println("Database initialization complete.")
	return db, nil
}

// Models lists every persisted entity, in migration order. Shared with the
// test fixtures so in-memory databases stay in step with production DDL.
func Models() []any {
	return []any{
		&model.Institution{},
		&model.Branch{},
		&model.Department{},
		&model.Category{},
		&model.Queue{},
		&model.QueueSchedule{},
		&model.ServiceTag{},
		&model.Ticket{},
		&model.UserProfile{},
		&model.UserPreference{},
		&model.PushSubscription{},
		&model.AuditLog{},
	}
}
