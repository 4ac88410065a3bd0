// Package mysql reads ticket data from the external helpdesk database.
// Everything here is read-only: the schema is owned by the helpdesk
// system and this bot never writes to it.
package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	driver "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

var ErrNotFound = errors.New("not found")

// Tables holds the configurable table names. Every name is checked as a
// safe identifier before being spliced into query text; row values always
// go through placeholders.
type Tables struct {
	Tickets       string
	Users         string
	Buildings     string
	Categories    string
	Subcategories string
}

type Config struct {
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	MaxOpenConns int
	Tables       Tables
}

type Store struct {
	db     *sqlx.DB
	tables Tables
	log    *zap.Logger
}

func Open(cfg Config, log *zap.Logger) (*Store, error) {
	tables := []struct{ kind, name string }{
		{"tickets", cfg.Tables.Tickets},
		{"users", cfg.Tables.Users},
		{"buildings", cfg.Tables.Buildings},
		{"categories", cfg.Tables.Categories},
		{"subcategories", cfg.Tables.Subcategories},
	}
	for _, t := range tables {
		if !safeIdentifier(t.name) {
			return nil, fmt.Errorf("%s table name %q contains invalid characters, allowed: letters, digits, underscore", t.kind, t.name)
		}
	}

	mc := driver.NewConfig()
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.DBName = cfg.Database
	mc.ParseTime = true
	mc.Params = map[string]string{"charset": "utf8mb4"}

	db, err := sqlx.Open("mysql", mc.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns)
	}
	db.SetConnMaxLifetime(3 * time.Minute)

	log.Info("mysql pool configured",
		zap.String("addr", mc.Addr),
		zap.String("database", cfg.Database),
		zap.Int("max_open_conns", cfg.MaxOpenConns))

	return &Store{db: db, tables: cfg.Tables, log: log}, nil
}

// Ping probes the database; used at startup and by the status command.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// safeIdentifier reports whether name may be spliced into SQL as a table
// name: non-empty, ASCII letters, digits and underscores only.
func safeIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_':
		default:
			return false
		}
	}
	return true
}
