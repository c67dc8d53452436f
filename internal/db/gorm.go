package db

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/librepage/librepage-back/internal/config"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type (
	GormForkedModel struct {
		ID        uint64 `gorm:"primarykey"`
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	User struct {
		GormForkedModel
		Email        string  `gorm:"unique;not null"`
		Name         string  `gorm:"not null"`
		Handle       string  `gorm:"unique;not null"`
		Role         string  `gorm:"not null;default:user"`
		PasswordHash *string // nil for OAuth-only accounts
		ThemePalette string
		ButtonStyle  string
		TotalViews   uint64 `gorm:"not null;default:0"`
		Links        []Link
		Groups       []LinkGroup
	}

	Link struct {
		GormForkedModel
		Title    string `gorm:"not null"`
		URL      string `gorm:"not null"`
		Order    int    `gorm:"not null;default:0"`
		IsSocial bool   `gorm:"not null;default:false"`
		Archived bool   `gorm:"not null;default:false"`
		GroupID  *uint64 `gorm:"index"`
		UserID   uint64  `gorm:"not null;index"`
		User     User
	}

	LinkGroup struct {
		GormForkedModel
		Name   string `gorm:"not null"`
		Order  int    `gorm:"not null;default:0"`
		Links  []Link `gorm:"foreignKey:GroupID;constraint:OnDelete:SET NULL"`
		UserID uint64 `gorm:"not null;index"`
		User   User
	}
)

func NewGormClient(cfg *config.Config) (*gorm.DB, error) {
	newLogger := logger.New(log.New(os.Stdout, "\r\n", log.LstdFlags), logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Info,
		Colorful:                  true,
		IgnoreRecordNotFoundError: false,
	})

	var dialector gorm.Dialector
	if cfg.DBDriver == config.DriverSQLite {
		dialector = sqlite.Open(cfg.DBName)
	} else {
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
			cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, cfg.DBSSLMode)
		dialector = postgres.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newLogger,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect database")
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate is shared with the test suites, which run against in-memory SQLite.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&User{}); err != nil {
		return errors.Wrap(err, "migrate user")
	}
	if err := db.AutoMigrate(&LinkGroup{}); err != nil {
		return errors.Wrap(err, "migrate link group")
	}
	if err := db.AutoMigrate(&Link{}); err != nil {
		return errors.Wrap(err, "migrate link")
	}
	return nil
}
