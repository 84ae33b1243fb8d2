// Package pg binds validated request contexts to PostgreSQL connections.
// Tenant isolation is enforced below the application layer: row-level
// security policies read the per-connection app.tenant_id setting, so a
// query that omits an explicit tenant filter still cannot cross tenants.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"opticore.org/internal/auth"
)

var ErrNotFound = errors.New("pg: not found")

type Store struct {
	db *sql.DB
}

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing pool (used by tests).
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// TenantConn is a pooled connection pinned to one request's tenant context.
// Every query issued through it is subject to the row-level security
// policies keyed on the settings applied in Bind.
type TenantConn struct {
	conn *sql.Conn
}

// Bind pins a connection and applies the request context to it before any
// query runs. The settings come from the validated RequestContext only,
// never from request parameters, so they cannot be spoofed by the client.
func (s *Store) Bind(ctx context.Context, rc auth.RequestContext) (*TenantConn, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	isAdmin := "off"
	if rc.IsPlatformAdmin {
		isAdmin = "on"
	}
	if _, err := conn.ExecContext(ctx,
		`select set_config('app.tenant_id', $1, false), set_config('app.is_platform_admin', $2, false)`,
		rc.TenantID, isAdmin,
	); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &TenantConn{conn: conn}, nil
}

// Close clears the tenant settings and returns the connection to the pool.
func (c *TenantConn) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, _ = c.conn.ExecContext(ctx,
		`select set_config('app.tenant_id', '', false), set_config('app.is_platform_admin', 'off', false)`)
	return c.conn.Close()
}

func (c *TenantConn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.conn.ExecContext(ctx, query, args...)
}

func (c *TenantConn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.conn.QueryContext(ctx, query, args...)
}

func (c *TenantConn) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return c.conn.QueryRowContext(ctx, query, args...)
}
