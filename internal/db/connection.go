package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/scholarai/citecheck/internal/config"
	"github.com/scholarai/citecheck/internal/models"
)

// Connect opens the database connection from config.
func Connect(cfg config.Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		cfg.DBHost,
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBName,
		cfg.DBPort,
		cfg.DBSSLMode,
	)

	database, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Error),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return database, nil
}

// AutoMigrate runs schema migrations for all models.
func AutoMigrate(database *gorm.DB) error {
	if err := database.AutoMigrate(
		&models.CheckJob{},
		&models.Issue{},
		&models.Evidence{},
		&models.ContextSource{},
	); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}
