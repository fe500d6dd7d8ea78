package db

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/hivemind-app/hivemind-back/internal/config"
)

// Content type enumeration. Anything else is rejected at create/update.
const (
	ContentTypeImage   = "image"
	ContentTypeVideo   = "video"
	ContentTypeArticle = "article"
	ContentTypeAudio   = "audio"
	ContentTypeText    = "text"
	ContentTypeYoutube = "youtube"
	ContentTypeTwitter = "twitter"
)

var contentTypes = map[string]struct{}{
	ContentTypeImage:   {},
	ContentTypeVideo:   {},
	ContentTypeArticle: {},
	ContentTypeAudio:   {},
	ContentTypeText:    {},
	ContentTypeYoutube: {},
	ContentTypeTwitter: {},
}

func ValidContentType(t string) bool {
	_, ok := contentTypes[t]
	return ok
}

type (
	// Base is a gorm.Model fork with uint64 keys and no soft deletes.
	Base struct {
		ID        uint64 `gorm:"primarykey"`
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	User struct {
		Base
		Name     string `gorm:"not null"`
		Email    string `gorm:"unique;not null"`
		Password string `gorm:"not null"` // bcrypt hash, never the raw password
		Contents []Content
	}

	Content struct {
		Base
		Link   string `gorm:"not null"`
		Type   string `gorm:"not null"`
		Title  string `gorm:"not null"`
		Tags   []Tag  `gorm:"many2many:content_tags;"`
		UserID uint64 `gorm:"not null;index"`
		User   User
	}

	Tag struct {
		Base
		Title    string    `gorm:"unique;not null"`
		Contents []Content `gorm:"many2many:content_tags;"`
	}

	// ShareLink grants anonymous read access to one user's collection.
	// The unique index on UserID is what actually guarantees "at most one
	// hash per user"; application-level pre-checks are an optimization.
	ShareLink struct {
		Base
		Hash   string `gorm:"uniqueIndex;not null"`
		UserID uint64 `gorm:"uniqueIndex;not null"`
		User   User
	}
)

func NewGormClient(cfg *config.Config) (*gorm.DB, error) {
	newLogger := logger.New(log.New(os.Stdout, "\r\n", log.LstdFlags), logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		Colorful:                  true,
		IgnoreRecordNotFoundError: true,
	})

	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, cfg.DBSSLMode)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         newLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect database")
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate keeps the schema in sync. Shared with the sqlite-backed tests.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&User{}); err != nil {
		return errors.Wrap(err, "migrate user")
	}
	if err := db.AutoMigrate(&Tag{}); err != nil {
		return errors.Wrap(err, "migrate tag")
	}
	if err := db.AutoMigrate(&Content{}); err != nil {
		return errors.Wrap(err, "migrate content")
	}
	if err := db.AutoMigrate(&ShareLink{}); err != nil {
		return errors.Wrap(err, "migrate share link")
	}
	return nil
}
