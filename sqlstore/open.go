package sqlstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	slogGorm "github.com/orandin/slog-gorm"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"
)

// Open connects to the database named by dburl and returns a Store over it.
//
// Supported forms are "sqlite://<path>" (including "sqlite://:memory:") and
// "postgres://..." or "postgresql://..." URLs, which are handed to the pgx
// driver as is.
func Open(dburl string, cfg Config) (*Store, error) {
	cfg.validate()

	var (
		dial      gorm.Dialector
		openConns = cfg.MaxOpenConns
		isSqlite  bool
	)
	switch {
	case strings.HasPrefix(dburl, "sqlite://"):
		path := dburl[len("sqlite://"):]
		if !strings.Contains(path, ":memory:") {
			if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
				return nil, err
			}
		}
		dial = sqlite.Open(path)
		openConns = 1
		isSqlite = true
	case strings.HasPrefix(dburl, "postgresql://") || strings.HasPrefix(dburl, "postgres://"):
		dial = postgres.Open(dburl)
	default:
		return nil, fmt.Errorf("unsupported database URL scheme: must start with sqlite://, postgres://, or postgresql://")
	}

	db, err := gorm.Open(dial, &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
		Logger:                 slogGorm.New(slogGorm.WithLogger(cfg.Logger)),
	})
	if err != nil {
		return nil, err
	}

	sqldb, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqldb.SetMaxOpenConns(openConns)
	sqldb.SetMaxIdleConns(openConns)

	if isSqlite {
		// An in-memory database lives as long as its only connection.
		if err := db.Exec("PRAGMA journal_mode=WAL;").Error; err != nil {
			return nil, err
		}
		if err := db.Exec("PRAGMA synchronous=normal;").Error; err != nil {
			return nil, err
		}
		if err := db.Exec("PRAGMA busy_timeout=10000;").Error; err != nil {
			return nil, err
		}
	} else {
		sqldb.SetConnMaxIdleTime(time.Hour)
	}

	if cfg.Tracing {
		if err := db.Use(tracing.NewPlugin()); err != nil {
			return nil, fmt.Errorf("failed to install tracing plugin: %w", err)
		}
	}

	return New(db, cfg), nil
}

// Migrate creates or updates the node table and its indexes.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).Table(s.cfg.Table).AutoMigrate(&nodeRow{})
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqldb, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqldb.Close()
}
