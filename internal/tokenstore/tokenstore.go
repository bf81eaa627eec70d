// Package tokenstore persists per-account OAuth refresh tokens. It prefers
// the OS keyring and falls back to a JSON file at a platform-conventional
// config path, grounded on original_source's oauth::storage (the Rust
// TokenStorage/StoredAccounts/StoredAccount design) and rendered in the
// teacher's Go idiom (exported struct + method set, sync.Mutex guarding the
// single on-disk document).
package tokenstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/zalando/go-keyring"
)

const (
	storageVersion = 1
	keyringService = "aether-bridge"
	fileName       = "accounts.json"
)

// StoredAccount is the on-disk/persisted shape for one account (spec §3/§6).
type StoredAccount struct {
	Email        string `json:"email"`
	RefreshToken string `json:"refresh_token"`
	AddedAt      int64  `json:"added_at"`
	LastUsed     int64  `json:"last_used"`
}

// StoredAccounts is the container document written to accounts.json.
type StoredAccounts struct {
	Version     int             `json:"version"`
	Accounts    []StoredAccount `json:"accounts"`
	ActiveIndex int             `json:"active_index"`
}

// Store is the Token Store (C1). Reads prefer the keyring; writes update
// both the JSON file and the keyring. The JSON file is always authoritative
// — keyring failures are logged as warnings, never propagated as errors.
type Store struct {
	mu              sync.Mutex
	configPath      string
	keyringAvailable bool
	warn            func(format string, args ...interface{})
}

// New resolves the platform config directory (os.UserConfigDir(), the stdlib
// equivalent of the Rust `directories` crate call this is grounded on),
// ensures it exists, and probes keyring availability.
func New(warn func(format string, args ...interface{})) (*Store, error) {
	if warn == nil {
		warn = func(string, ...interface{}) {}
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("tokenstore: resolve config dir: %w", err)
	}
	dir = filepath.Join(dir, "aether-bridge")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("tokenstore: create config dir: %w", err)
	}

	s := &Store{
		configPath: filepath.Join(dir, fileName),
		warn:       warn,
	}
	s.keyringAvailable = s.probeKeyring()
	return s, nil
}

// NewAt is a test constructor pointing directly at a config file path, with
// the keyring probe forced off (mirrors the Rust test harness's
// `keyring_available: false` override).
func NewAt(path string) *Store {
	return &Store{configPath: path, keyringAvailable: false, warn: func(string, ...interface{}) {}}
}

func (s *Store) probeKeyring() bool {
	const probeUser = "test-availability"
	if err := keyring.Set(keyringService, probeUser, "probe"); err != nil {
		return false
	}
	_ = keyring.Delete(keyringService, probeUser)
	return true
}

// ConfigPath returns the on-disk JSON document path.
func (s *Store) ConfigPath() string { return s.configPath }

// LoadAll reads the full StoredAccounts document. Returns a fresh empty
// document if none exists yet.
func (s *Store) LoadAll() (StoredAccounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() (StoredAccounts, error) {
	data, err := os.ReadFile(s.configPath)
	if os.IsNotExist(err) {
		return StoredAccounts{Version: storageVersion}, nil
	}
	if err != nil {
		return StoredAccounts{}, fmt.Errorf("tokenstore: read: %w", err)
	}
	var doc StoredAccounts
	if err := json.Unmarshal(data, &doc); err != nil {
		return StoredAccounts{}, fmt.Errorf("tokenstore: parse: %w", err)
	}
	return doc, nil
}

func (s *Store) saveLocked(doc StoredAccounts) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("tokenstore: marshal: %w", err)
	}
	return os.WriteFile(s.configPath, data, 0o600)
}

// Add upserts an account by email: an existing entry's refresh token and
// last_used are updated in place; otherwise a new entry is appended.
func (s *Store) Add(email, refreshToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadLocked()
	if err != nil {
		return err
	}
	now := time.Now().Unix()

	found := false
	for i := range doc.Accounts {
		if doc.Accounts[i].Email == email {
			doc.Accounts[i].RefreshToken = refreshToken
			doc.Accounts[i].LastUsed = now
			found = true
			break
		}
	}
	if !found {
		doc.Accounts = append(doc.Accounts, StoredAccount{
			Email:        email,
			RefreshToken: refreshToken,
			AddedAt:      now,
			LastUsed:     now,
		})
	}
	if doc.Version == 0 {
		doc.Version = storageVersion
	}

	if err := s.saveLocked(doc); err != nil {
		return err
	}

	if s.keyringAvailable {
		if err := keyring.Set(keyringService, email, refreshToken); err != nil {
			s.warn("tokenstore: failed to store refresh token in keyring for %s: %v", email, err)
		}
	}
	return nil
}

// Remove deletes an account by email. Returns whether it existed.
func (s *Store) Remove(email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadLocked()
	if err != nil {
		return false, err
	}
	orig := len(doc.Accounts)
	kept := doc.Accounts[:0]
	for _, a := range doc.Accounts {
		if a.Email != email {
			kept = append(kept, a)
		}
	}
	doc.Accounts = kept
	if len(doc.Accounts) == orig {
		return false, nil
	}
	if doc.ActiveIndex >= len(doc.Accounts) && len(doc.Accounts) > 0 {
		doc.ActiveIndex = len(doc.Accounts) - 1
	}
	if err := s.saveLocked(doc); err != nil {
		return false, err
	}
	if s.keyringAvailable {
		_ = keyring.Delete(keyringService, email)
	}
	return true, nil
}

// GetRefreshToken returns the refresh token for email, preferring the
// keyring and falling back to the JSON file.
func (s *Store) GetRefreshToken(email string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.keyringAvailable {
		if tok, err := keyring.Get(keyringService, email); err == nil {
			return tok, nil
		}
	}
	doc, err := s.loadLocked()
	if err != nil {
		return "", err
	}
	for _, a := range doc.Accounts {
		if a.Email == email {
			return a.RefreshToken, nil
		}
	}
	return "", fmt.Errorf("tokenstore: no refresh token found for %s", email)
}

// MarkUsed updates an account's last_used timestamp.
func (s *Store) MarkUsed(email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.loadLocked()
	if err != nil {
		return err
	}
	for i := range doc.Accounts {
		if doc.Accounts[i].Email == email {
			doc.Accounts[i].LastUsed = time.Now().Unix()
			return s.saveLocked(doc)
		}
	}
	return nil
}

// SetActive sets the active account index, bounds-checked.
func (s *Store) SetActive(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.loadLocked()
	if err != nil {
		return err
	}
	if index < 0 || index >= len(doc.Accounts) {
		return fmt.Errorf("tokenstore: invalid account index %d", index)
	}
	doc.ActiveIndex = index
	return s.saveLocked(doc)
}
