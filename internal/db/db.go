package db

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Dialect selects the SQL flavour of the underlying database.
type Dialect int

// Supported dialects.
const (
	SQLite Dialect = iota
	Postgres
)

// ParseDialect maps a configured driver name to a Dialect.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "", "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	default:
		return 0, fmt.Errorf("unsupported database driver %q", name)
	}
}

func (d Dialect) String() string {
	if d == Postgres {
		return "postgres"
	}
	return "sqlite"
}

func (d Dialect) driverName() string {
	if d == Postgres {
		return "pgx"
	}
	return "sqlite"
}

// Rebind rewrites ? placeholders into $n for Postgres.
func (d Dialect) Rebind(query string) string {
	if d != Postgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// ForUpdate returns the row-locking suffix for SELECT statements, limited to
// the given table aliases when any are passed. SQLite locks the whole
// database on write, so it has none.
func (d Dialect) ForUpdate(tables ...string) string {
	if d != Postgres {
		return ""
	}
	if len(tables) == 0 {
		return " FOR UPDATE"
	}
	return " FOR UPDATE OF " + strings.Join(tables, ", ")
}

// DB is a database handle that rewrites placeholders for its dialect.
type DB struct {
	*sql.DB
	Dialect Dialect
}

// Open opens a database connection for the given driver and configures it.
// For SQLite, dsn is a file path (or ":memory:").
func Open(driver, dsn string) (*DB, error) {
	dialect, err := ParseDialect(driver)
	if err != nil {
		return nil, err
	}

	conn, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	switch dialect {
	case SQLite:
		// One writer connection: SQLite serializes writes anyway, and an
		// in-memory database exists only on the connection that created it.
		conn.SetMaxOpenConns(1)

		pragmas := []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA busy_timeout=5000",
			"PRAGMA foreign_keys=ON",
			"PRAGMA synchronous=NORMAL",
		}
		for _, p := range pragmas {
			if _, err := conn.Exec(p); err != nil {
				conn.Close()
				return nil, fmt.Errorf("setting pragma %q: %w", p, err)
			}
		}
	case Postgres:
		conn.SetMaxOpenConns(25)
		conn.SetMaxIdleConns(25)
		conn.SetConnMaxLifetime(5 * time.Minute)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := conn.PingContext(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("pinging database: %w", err)
		}
	}

	return &DB{DB: conn, Dialect: dialect}, nil
}

// ExecContext executes a query with rebound placeholders.
func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.DB.ExecContext(ctx, db.Dialect.Rebind(query), args...)
}

// QueryContext runs a query with rebound placeholders.
func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.DB.QueryContext(ctx, db.Dialect.Rebind(query), args...)
}

// QueryRowContext runs a single-row query with rebound placeholders.
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return db.DB.QueryRowContext(ctx, db.Dialect.Rebind(query), args...)
}

// BeginTx starts a transaction bound to ctx; cancelling ctx rolls it back.
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*Tx, error) {
	tx, err := db.DB.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Tx{Tx: tx, Dialect: db.Dialect}, nil
}

// Tx is a transaction that rewrites placeholders for its dialect.
type Tx struct {
	*sql.Tx
	Dialect Dialect
}

// ExecContext executes a query with rebound placeholders.
func (tx *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return tx.Tx.ExecContext(ctx, tx.Dialect.Rebind(query), args...)
}

// QueryContext runs a query with rebound placeholders.
func (tx *Tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return tx.Tx.QueryContext(ctx, tx.Dialect.Rebind(query), args...)
}

// QueryRowContext runs a single-row query with rebound placeholders.
func (tx *Tx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return tx.Tx.QueryRowContext(ctx, tx.Dialect.Rebind(query), args...)
}

// WithTx runs fn inside a transaction, committing when fn returns nil and
// rolling back otherwise (including on panic).
func WithTx(ctx context.Context, db *DB, fn func(*Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	defer func() {
		p := recover()
		switch {
		case p != nil:
			_ = tx.Rollback()
			panic(p)
		case err != nil:
			if rbErr := tx.Rollback(); rbErr != nil {
				err = fmt.Errorf("rolling back: %w (original error: %w)", rbErr, err)
			}
		default:
			if err = tx.Commit(); err != nil {
				err = fmt.Errorf("committing transaction: %w", err)
			}
		}
	}()

	err = fn(tx)
	return
}
