package db

import (
	"context"
	"errors"
	"testing"
)

func TestParseDialect(t *testing.T) {
	tests := []struct {
		name    string
		want    Dialect
		wantErr bool
	}{
		{"", SQLite, false},
		{"sqlite", SQLite, false},
		{"postgres", Postgres, false},
		{"PGX", Postgres, false},
		{"mysql", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseDialect(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDialect(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDialect(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestRebind(t *testing.T) {
	q := `UPDATE items SET title = ?, url = ? WHERE id = ?`

	if got := SQLite.Rebind(q); got != q {
		t.Errorf("SQLite rebind changed query: %s", got)
	}

	want := `UPDATE items SET title = $1, url = $2 WHERE id = $3`
	if got := Postgres.Rebind(q); got != want {
		t.Errorf("Postgres rebind = %q, want %q", got, want)
	}
}

func TestForUpdate(t *testing.T) {
	if SQLite.ForUpdate() != "" {
		t.Error("SQLite should not lock rows explicitly")
	}
	if Postgres.ForUpdate() != " FOR UPDATE" {
		t.Errorf("unexpected Postgres suffix %q", Postgres.ForUpdate())
	}
	if got := Postgres.ForUpdate("i"); got != " FOR UPDATE OF i" {
		t.Errorf("unexpected Postgres suffix %q", got)
	}
}

func TestEnsureSchemaIdempotent(t *testing.T) {
	db := NewTestDB(t)
	if err := EnsureSchema(db); err != nil {
		t.Fatalf("second EnsureSchema: %v", err)
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := WithTx(ctx, db, func(tx *Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO settings (key, value) VALUES (?, ?)`, "k", "v"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM settings`).Scan(&count); err != nil {
		t.Fatalf("counting settings: %v", err)
	}
	if count != 0 {
		t.Errorf("expected rollback, found %d rows", count)
	}
}

func TestWithTxCommits(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()

	err := WithTx(ctx, db, func(tx *Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO settings (key, value) VALUES (?, ?)`, "k", "v")
		return err
	})
	if err != nil {
		t.Fatalf("WithTx: %v", err)
	}

	var value string
	if err := db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, "k").Scan(&value); err != nil {
		t.Fatalf("reading setting: %v", err)
	}
	if value != "v" {
		t.Errorf("expected v, got %q", value)
	}
}
