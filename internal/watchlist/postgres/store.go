// Package postgres persists the watch list in a Postgres table.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/archive-resolver/internal/watchlist"
)

// DefaultTable holds watched domains.
const DefaultTable = "paywall_sites"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for the watch list.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Close()
}

// Store is a Postgres-backed watchlist.Store.
type Store struct {
	pool  pool
	table string
}

var _ watchlist.Store = (*Store)(nil)

// New connects to Postgres and creates the table if it does not exist.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("watchlist.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s, err := NewWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, table string) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Store{pool: p, table: table}, nil
}

// EnsureSchema creates the table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	domain TEXT UNIQUE NOT NULL,
	added_by TEXT,
	added_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Add inserts domain; an existing row is left untouched and reported as not added.
func (s *Store) Add(ctx context.Context, domain, addedBy string) (bool, error) {
	query := fmt.Sprintf(`INSERT INTO %s (domain, added_by) VALUES ($1, $2) ON CONFLICT (domain) DO NOTHING`, s.table)
	tag, err := s.pool.Exec(ctx, query, domain, addedBy)
	if err != nil {
		return false, fmt.Errorf("insert site: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Remove deletes domain.
func (s *Store) Remove(ctx context.Context, domain string) (bool, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE domain = $1`, s.table)
	tag, err := s.pool.Exec(ctx, query, domain)
	if err != nil {
		return false, fmt.Errorf("delete site: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// List returns every site ordered by domain.
func (s *Store) List(ctx context.Context) ([]watchlist.Site, error) {
	query := fmt.Sprintf(`SELECT domain, COALESCE(added_by, ''), added_at FROM %s ORDER BY domain`, s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	defer rows.Close()

	var sites []watchlist.Site
	for rows.Next() {
		var site watchlist.Site
		if err := rows.Scan(&site.Domain, &site.AddedBy, &site.AddedAt); err != nil {
			return nil, fmt.Errorf("scan site: %w", err)
		}
		sites = append(sites, site)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sites: %w", err)
	}
	return sites, nil
}
