// Package database opens the catalog database and migrates its schema.
package database

import (
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/osa030/musicbucket/internal/domain/activity"
	"github.com/osa030/musicbucket/internal/domain/catalog"
	"github.com/osa030/musicbucket/internal/infra/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config represents database connection configuration.
type Config struct {
	Driver        string
	DSN           string
	LogLevel      string
	SlowThreshold time.Duration
	MaxOpenConns  int
}

// Open connects to the configured database.
// SQLite is limited to a single connection so writers serialize instead of failing with SQLITE_BUSY.
func Open(cfg Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverPostgres:
		dialector = postgres.Open(cfg.DSN)
	case DriverSQLite, "":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, errors.Newf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  logger.NewGormLogger(cfg.LogLevel, cfg.SlowThreshold),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s database", cfg.Driver)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get database handle")
	}
	switch {
	case cfg.Driver == DriverPostgres && cfg.MaxOpenConns > 0:
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	case cfg.Driver != DriverPostgres:
		sqlDB.SetMaxOpenConns(1)
	}

	zlog.Debug().Msgf("database opened: driver=%s", cfg.Driver)
	return db, nil
}

// Models returns every persisted model in migration order.
func Models() []any {
	return []any{
		&catalog.Genre{},
		&catalog.Artist{},
		&catalog.Album{},
		&catalog.Track{},
		&catalog.ArtistGenre{},
		&catalog.AlbumGenre{},
		&catalog.AlbumArtist{},
		&catalog.TrackArtist{},
		&catalog.Link{},
		&activity.User{},
		&activity.Chat{},
		&activity.SentLink{},
		&activity.SavedLink{},
		&activity.FollowedArtist{},
	}
}

// Migrate creates or updates the schema for all models.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return errors.Wrap(err, "failed to migrate database")
	}
	return nil
}

// Close closes the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrap(err, "failed to get database handle")
	}
	return sqlDB.Close()
}
