// Package postgres stores universe records in PostgreSQL, one table per
// collection. Tables are unique on (universe_id, day_index), proposals on
// (universe_id, day_index, role), so a second writer for the same day fails
// with store.ErrDuplicate.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/shone114/alternate-history/internal/model"
	"github.com/shone114/alternate-history/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Pool sizes the database/sql connection pool.
type Pool struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
}

// DefaultPool suits a single server process running one cycle at a time.
var DefaultPool = Pool{MaxOpen: 10, MaxIdle: 4, MaxLifetime: 10 * time.Minute}

type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open connects to databaseURL and brings the schema up to date.
func Open(ctx context.Context, databaseURL string, pool Pool) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(pool.MaxOpen)
	db.SetMaxIdleConns(pool.MaxIdle)
	db.SetConnMaxLifetime(pool.MaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("reaching database: %w", err)
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Wrap uses an open handle as is. The schema is assumed to exist.
func Wrap(db *sql.DB) *Store {
	return &Store{db: db}
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("reading migrations: %w", err)
	}
	target, err := migratepg.WithInstance(db, &migratepg.Config{MigrationsTable: "althist_schema_migrations"})
	if err != nil {
		return fmt.Errorf("preparing migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", target)
	if err != nil {
		return fmt.Errorf("preparing migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrating schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error                   { return s.db.Close() }
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Insert(ctx context.Context, rec model.Record) error {
	return queryInsert(ctx, s.db, rec)
}

func (s *Store) FindOne(ctx context.Context, coll model.Collection, f model.Filter, sort model.SortOrder) (model.Record, error) {
	return queryFindOne(ctx, s.db, coll, f, sort)
}

func (s *Store) Find(ctx context.Context, coll model.Collection, f model.Filter, sort model.SortOrder, skip, limit int) ([]model.Record, error) {
	return queryFind(ctx, s.db, coll, f, sort, skip, limit)
}

func (s *Store) DeleteMany(ctx context.Context, coll model.Collection, f model.Filter) (int64, error) {
	return queryDeleteMany(ctx, s.db, coll, f)
}

func (s *Store) GetUniverse(ctx context.Context, id string) (*model.Universe, error) {
	return queryGetUniverse(ctx, s.db, id)
}

func (s *Store) EnsureUniverse(ctx context.Context, u *model.Universe) (*model.Universe, error) {
	return queryEnsureUniverse(ctx, s.db, u)
}
