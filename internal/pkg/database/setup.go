package database

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ManuelReschke/ArtFox/app/models"
	"github.com/ManuelReschke/ArtFox/internal/pkg/env"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

var DB *gorm.DB

// DSN builds the MySQL connection string from the environment.
func DSN() string {
	// "user:pass@tcp(127.0.0.1:3306)/dbname?charset=utf8mb4&parseTime=True&loc=UTC"
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		env.GetEnv("DB_USER", ""),
		env.GetEnv("DB_PASSWORD", ""),
		env.GetEnv("DB_HOST", "127.0.0.1"),
		env.GetEnv("DB_PORT", "3306"),
		env.GetEnv("DB_NAME", ""),
	)
}

// SetupDatabase connects with retries and migrates the state tables.
func SetupDatabase(ctx context.Context) (*gorm.DB, error) {
	var db *gorm.DB
	var err error

	gormLogger := logger.Default.LogMode(logger.Warn)
	if env.IsDev() {
		gormLogger = logger.Default.LogMode(logger.Info)
	}

	for i := 0; i < maxRetries; i++ {
		db, err = gorm.Open(mysql.New(mysql.Config{
			DSN:                       DSN(), // data source name
			DefaultStringSize:         256,   // default size for string fields
			DisableDatetimePrecision:  true,  // disable datetime precision, which not supported before MySQL 5.6
			DontSupportRenameIndex:    true,  // drop & create when rename index, rename index not supported before MySQL 5.7, MariaDB
			DontSupportRenameColumn:   true,  // `change` when rename column, rename column not supported before MySQL 8, MariaDB
			SkipInitializeWithVersion: false, // auto configure based on currently MySQL version
		}), &gorm.Config{Logger: gormLogger})
		if err == nil {
			break
		}

		log.Warnf("[Database] Failed to connect (try %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.WithContext(ctx).AutoMigrate(
		&models.CreditBalance{},
		&models.CreditTransaction{},
		&models.OrderPaymentStatus{},
		&models.ProcessedWebhookEvent{},
		&models.StateDocument{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate state tables: %w", err)
	}

	DB = db
	log.Info("[Database] Connected and migrated")
	return db, nil
}

// GetDB returns the connection created by SetupDatabase, or nil.
func GetDB() *gorm.DB {
	return DB
}
