package db

import (
	"fmt"
	"strings"
)

// sqliteSchema is the full SQLite schema.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
    id            TEXT PRIMARY KEY,
    email         TEXT NOT NULL UNIQUE,
    display_name  TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    created_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS wishlists (
    id           TEXT PRIMARY KEY,
    owner_id     TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    title        TEXT NOT NULL,
    description  TEXT,
    event_date   DATETIME,
    is_public    BOOLEAN NOT NULL DEFAULT 1,
    access_token TEXT NOT NULL UNIQUE,
    created_at   DATETIME NOT NULL,
    updated_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_wishlists_owner ON wishlists(owner_id);

CREATE TABLE IF NOT EXISTS items (
    id          TEXT PRIMARY KEY,
    wishlist_id TEXT NOT NULL REFERENCES wishlists(id) ON DELETE CASCADE,
    title       TEXT NOT NULL,
    url         TEXT,
    image_url   TEXT,
    image       BLOB,
    image_mime  TEXT,
    price_cents INTEGER CHECK (price_cents IS NULL OR price_cents >= 0),
    currency    TEXT NOT NULL DEFAULT 'USD',
    status      TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'archived')),
    reserved    BOOLEAN NOT NULL DEFAULT 0,
    reserved_at DATETIME,
    created_at  DATETIME NOT NULL,
    updated_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_items_wishlist ON items(wishlist_id);

CREATE TABLE IF NOT EXISTS reservations (
    id           TEXT PRIMARY KEY,
    item_id      TEXT NOT NULL REFERENCES items(id) ON DELETE CASCADE,
    reserver_id  TEXT REFERENCES users(id) ON DELETE SET NULL,
    display_name TEXT NOT NULL,
    created_at   DATETIME NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_reservations_item ON reservations(item_id);

CREATE TABLE IF NOT EXISTS contributions (
    id             TEXT PRIMARY KEY,
    item_id        TEXT NOT NULL REFERENCES items(id) ON DELETE CASCADE,
    contributor_id TEXT REFERENCES users(id) ON DELETE SET NULL,
    display_name   TEXT NOT NULL,
    amount_cents   INTEGER NOT NULL CHECK (amount_cents > 0),
    created_at     DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_contributions_item ON contributions(item_id);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);
`

// postgresSchema is the full PostgreSQL schema.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
    id            UUID PRIMARY KEY,
    email         TEXT NOT NULL UNIQUE,
    display_name  TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS wishlists (
    id           UUID PRIMARY KEY,
    owner_id     UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    title        TEXT NOT NULL,
    description  TEXT,
    event_date   TIMESTAMPTZ,
    is_public    BOOLEAN NOT NULL DEFAULT TRUE,
    access_token TEXT NOT NULL UNIQUE,
    created_at   TIMESTAMPTZ NOT NULL,
    updated_at   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_wishlists_owner ON wishlists(owner_id);

CREATE TABLE IF NOT EXISTS items (
    id          UUID PRIMARY KEY,
    wishlist_id UUID NOT NULL REFERENCES wishlists(id) ON DELETE CASCADE,
    title       TEXT NOT NULL,
    url         TEXT,
    image_url   TEXT,
    image       BYTEA,
    image_mime  TEXT,
    price_cents BIGINT CHECK (price_cents IS NULL OR price_cents >= 0),
    currency    TEXT NOT NULL DEFAULT 'USD',
    status      TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'archived')),
    reserved    BOOLEAN NOT NULL DEFAULT FALSE,
    reserved_at TIMESTAMPTZ,
    created_at  TIMESTAMPTZ NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_items_wishlist ON items(wishlist_id);

CREATE TABLE IF NOT EXISTS reservations (
    id           UUID PRIMARY KEY,
    item_id      UUID NOT NULL REFERENCES items(id) ON DELETE CASCADE,
    reserver_id  UUID REFERENCES users(id) ON DELETE SET NULL,
    display_name TEXT NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_reservations_item ON reservations(item_id);

CREATE TABLE IF NOT EXISTS contributions (
    id             UUID PRIMARY KEY,
    item_id        UUID NOT NULL REFERENCES items(id) ON DELETE CASCADE,
    contributor_id UUID REFERENCES users(id) ON DELETE SET NULL,
    display_name   TEXT NOT NULL,
    amount_cents   BIGINT NOT NULL CHECK (amount_cents > 0),
    created_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_contributions_item ON contributions(item_id);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at TIMESTAMPTZ NOT NULL
);
`

// EnsureSchema creates all tables and indexes if they don't already exist.
func EnsureSchema(db *DB) error {
	schema := sqliteSchema
	if db.Dialect == Postgres {
		schema = postgresSchema
	}

	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.DB.Exec(stmt); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	return nil
}
