package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
)

// User statuses. Only active users may log in; disabled accounts keep their
// history but are rejected at authentication time.
const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
)

// User is one gateway account. Role is one of the moat role labels and
// decides both endpoint authorization and schema clearance.
type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	PasswordHash string `json:"-"`
	Status       string `json:"status"`
}

// UserStore resolves accounts by email.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (User, bool)
}

// MemoryUsers is a fixed, mutex-guarded account set. The gateway is not a
// user-management system; accounts are provisioned at startup.
type MemoryUsers struct {
	mu    sync.RWMutex
	users map[string]User
}

var _ UserStore = (*MemoryUsers)(nil)

func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{users: make(map[string]User)}
}

// Add registers a user, keyed by lower-cased email.
func (m *MemoryUsers) Add(user User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[normalizeEmail(user.Email)] = user
}

func (m *MemoryUsers) FindByEmail(_ context.Context, email string) (User, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[normalizeEmail(email)]
	return user, ok
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// userRecord is the on-disk provisioning shape. Password hashes are stored
// pre-computed; the file never contains plaintext credentials.
type userRecord struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	PasswordHash string `json:"password_hash"`
	Status       string `json:"status"`
}

// LoadUsers reads the account registry from a JSON file. An empty path yields
// an empty store, which means nobody can log in until accounts are
// provisioned.
func LoadUsers(path string) (*MemoryUsers, error) {
	store := NewMemoryUsers()
	if path == "" {
		return store, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read user registry: %w", err)
	}
	var records []userRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("parse user registry: %w", err)
	}
	for _, rec := range records {
		if rec.Email == "" || rec.PasswordHash == "" {
			return nil, fmt.Errorf("user registry entry %q: email and password_hash are required", rec.ID)
		}
		status := rec.Status
		if status == "" {
			status = StatusActive
		}
		store.Add(User{
			ID:           rec.ID,
			Email:        rec.Email,
			Role:         strings.ToLower(rec.Role),
			PasswordHash: rec.PasswordHash,
			Status:       status,
		})
	}
	return store, nil
}
