package store

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/erazemk/darila/internal/db"
)

func TestCreateAndGetUser(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, err := CreateUser(ctx, database, "alice@example.com", "Alice", "hash123")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if user.Email != "alice@example.com" {
		t.Errorf("expected email 'alice@example.com', got %q", user.Email)
	}

	got, err := GetUser(ctx, database, user.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got == nil {
		t.Fatal("expected user, got nil")
	}
	if got.DisplayName != "Alice" {
		t.Errorf("expected display name 'Alice', got %q", got.DisplayName)
	}
	if got.PasswordHash != "hash123" {
		t.Errorf("expected password hash to round-trip, got %q", got.PasswordHash)
	}
}

func TestGetUserByEmail(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	CreateUser(ctx, database, "bob@example.com", "Bob", "hash")

	got, err := GetUserByEmail(ctx, database, "bob@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if got == nil || got.DisplayName != "Bob" {
		t.Fatalf("expected Bob, got %+v", got)
	}

	missing, err := GetUserByEmail(ctx, database, "nobody@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail missing: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for unknown email")
	}
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	if _, err := CreateUser(ctx, database, "dup@example.com", "One", "hash"); err != nil {
		t.Fatalf("first CreateUser: %v", err)
	}
	if _, err := CreateUser(ctx, database, "dup@example.com", "Two", "hash"); err == nil {
		t.Error("expected unique constraint error for duplicate email")
	}
}

func TestGetUserMissing(t *testing.T) {
	database := db.NewTestDB(t)

	got, err := GetUser(context.Background(), database, uuid.New())
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got != nil {
		t.Error("expected nil for unknown id")
	}
}

func TestUpdateUserPassword(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, _ := CreateUser(ctx, database, "carol@example.com", "Carol", "old")
	if err := UpdateUserPassword(ctx, database, user.ID, "new"); err != nil {
		t.Fatalf("UpdateUserPassword: %v", err)
	}

	got, _ := GetUser(ctx, database, user.ID)
	if got.PasswordHash != "new" {
		t.Errorf("expected updated hash, got %q", got.PasswordHash)
	}
}
