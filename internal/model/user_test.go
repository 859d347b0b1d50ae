package model

import (
	"strings"
	"testing"
)

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		password string
		wantErr  bool
	}{
		{"", true},
		{"short", true},
		{"123456", false},
		{"a-valid-password", false},
		{strings.Repeat("x", 128), false},
		{strings.Repeat("x", 129), true},
	}

	for _, tt := range tests {
		err := ValidatePassword(tt.password)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidatePassword(%q) error = %v, wantErr %v", tt.password, err, tt.wantErr)
		}
	}
}

func TestValidateDisplayName(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{"Alice", "Alice", false},
		{"  Bob  ", "Bob", false},
		{"", "", true},
		{"   ", "", true},
		{strings.Repeat("ž", 100), strings.Repeat("ž", 100), false},
		{strings.Repeat("a", 101), "", true},
	}

	for _, tt := range tests {
		got, err := ValidateDisplayName(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateDisplayName(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ValidateDisplayName(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestNormalizeEmail(t *testing.T) {
	got, err := NormalizeEmail(" Alice@Example.COM ")
	if err != nil {
		t.Fatalf("NormalizeEmail: %v", err)
	}
	if got != "alice@example.com" {
		t.Errorf("expected alice@example.com, got %q", got)
	}

	if _, err := NormalizeEmail("not an email"); err == nil {
		t.Error("expected error for invalid email")
	}
}
