package auth

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadUsersEmptyPath(t *testing.T) {
	store, err := LoadUsers("")
	if err != nil {
		t.Fatalf("LoadUsers: %v", err)
	}
	if _, ok := store.FindByEmail(context.Background(), "anyone@example.com"); ok {
		t.Fatal("empty registry should resolve nobody")
	}
}

func TestLoadUsersFromFile(t *testing.T) {
	hash, err := HashPassword("pw-alice-1")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	path := filepath.Join(t.TempDir(), "users.json")
	payload := `[
		{"id": "u-1", "email": "Alice@Example.com", "role": "Analyst", "password_hash": "` + hash + `"},
		{"id": "u-2", "email": "bob@example.com", "role": "viewer", "password_hash": "` + hash + `", "status": "disabled"}
	]`
	if err := os.WriteFile(path, []byte(payload), 0o600); err != nil {
		t.Fatalf("write registry: %v", err)
	}

	store, err := LoadUsers(path)
	if err != nil {
		t.Fatalf("LoadUsers: %v", err)
	}

	alice, ok := store.FindByEmail(context.Background(), "alice@example.com")
	if !ok {
		t.Fatal("alice not found by lower-cased email")
	}
	if alice.Role != "analyst" {
		t.Fatalf("role not normalized: %q", alice.Role)
	}
	if alice.Status != StatusActive {
		t.Fatalf("missing status should default to active, got %q", alice.Status)
	}

	bob, ok := store.FindByEmail(context.Background(), "bob@example.com")
	if !ok {
		t.Fatal("bob not found")
	}
	if bob.Status != StatusDisabled {
		t.Fatalf("explicit status lost, got %q", bob.Status)
	}
}

func TestLoadUsersRejectsIncompleteRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	payload := `[{"id": "u-1", "email": "alice@example.com", "role": "analyst"}]`
	if err := os.WriteFile(path, []byte(payload), 0o600); err != nil {
		t.Fatalf("write registry: %v", err)
	}
	if _, err := LoadUsers(path); err == nil {
		t.Fatal("expected error for record without password_hash")
	}
}

func TestLoadUsersMissingFile(t *testing.T) {
	if _, err := LoadUsers(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected error for missing registry file")
	}
}
