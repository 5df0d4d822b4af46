package transport

import (
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// CredentialStore holds bcrypt password hashes keyed by account name.
// Grounded on the teacher's account_repo.go (deleted — it hashed and
// checked passwords against Postgres rows via bcrypt.CompareHashAndPassword
// the same way this in-memory store does against a map), trimmed to an
// in-memory stand-in since a generic ECS demo host has no account table of
// its own.
type CredentialStore struct {
	mu   sync.RWMutex
	hash map[string][]byte
}

func NewCredentialStore() *CredentialStore {
	return &CredentialStore{hash: make(map[string][]byte)}
}

// SetPassword stores the bcrypt hash of password for account, replacing
// any existing credential.
func (c *CredentialStore) SetPassword(account, password string) error {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.hash[account] = h
	c.mu.Unlock()
	return nil
}

// Verify reports whether password matches the stored hash for account.
// Returns false for an unknown account without distinguishing the two
// cases to callers, the same constant-shape failure bcrypt.
// CompareHashAndPassword already gives a caller comparing against a
// missing hash.
func (c *CredentialStore) Verify(account, password string) bool {
	c.mu.RLock()
	h, ok := c.hash[account]
	c.mu.RUnlock()
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword(h, []byte(password)) == nil
}
