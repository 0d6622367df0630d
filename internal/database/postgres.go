package database

import (
	"errors"
	"fmt"

	"github.com/thereayou/roomchat/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var ErrMissingDSN = errors.New("DATABASE_URL is not set")

// Postgres stores users and messages through gorm.
type Postgres struct {
	db *gorm.DB
}

func NewPostgres(db *gorm.DB) *Postgres {
	return &Postgres{db: db}
}

// OpenPostgres connects and migrates the schema.
func OpenPostgres(dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, ErrMissingDSN
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := db.AutoMigrate(&models.User{}, &models.Message{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return NewPostgres(db), nil
}

func (d *Postgres) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
