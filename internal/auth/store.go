// Package auth holds the registered users and checks credentials.
// Passwords are stored as SHA-256 hashes only.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"strings"
	"sync"
)

// RegisterResult is the outcome of a registration attempt.
type RegisterResult int

const (
	RegisterCreated RegisterResult = iota
	RegisterExists
	RegisterInvalid
)

// User is a registered account. The hash is SHA-256 over the UTF-8 password.
type User struct {
	Username     string
	PasswordHash []byte
}

// HashPassword computes the stored hash for a clear-text password.
func HashPassword(password string) []byte {
	sum := sha256.Sum256([]byte(password))
	return sum[:]
}

// Store is a thread-safe username -> user map. Reads (authentication,
// enumeration) take the read lock; registration takes the write lock.
type Store struct {
	mu    sync.RWMutex
	users map[string]*User
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{users: make(map[string]*User)}
}

// Register creates a new account. Usernames are trimmed; empty usernames or
// passwords are invalid, duplicates are rejected.
func (s *Store) Register(username, password string) RegisterResult {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return RegisterInvalid
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; ok {
		return RegisterExists
	}
	s.users[username] = &User{Username: username, PasswordHash: HashPassword(password)}
	return RegisterCreated
}

// RegisterPrehashed installs a user whose hash is already computed. Used by
// the persistence layer on recovery; existing entries are overwritten.
func (s *Store) RegisterPrehashed(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hash := append([]byte(nil), u.PasswordHash...)
	s.users[u.Username] = &User{Username: u.Username, PasswordHash: hash}
}

// Authenticate returns the user when the credentials match. The hash
// comparison is constant-time.
func (s *Store) Authenticate(username, password string) (*User, bool) {
	s.mu.RLock()
	u, ok := s.users[username]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if subtle.ConstantTimeCompare(u.PasswordHash, HashPassword(password)) != 1 {
		return nil, false
	}
	return u, true
}

// Count returns the number of registered users.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// All returns a snapshot of every user, for persistence.
func (s *Store) All() []User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, User{
			Username:     u.Username,
			PasswordHash: append([]byte(nil), u.PasswordHash...),
		})
	}
	return out
}
