// Package store persists per-account and fleet-wide state. Every mutation
// serializes the full record and atomically replaces the on-disk file.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// Authenticator is the mobile-authenticator enrollment block.
type Authenticator struct {
	SharedSecret   string            `json:"shared_secret"`
	IdentitySecret string            `json:"identity_secret"`
	DeviceID       string            `json:"device_id"`
	Cookies        map[string]string `json:"cookies,omitempty"` // web-session cookies captured at enrollment
}

// Valid reports whether the block carries everything needed to sign requests.
func (a *Authenticator) Valid() bool {
	return a != nil && a.SharedSecret != "" && a.IdentitySecret != "" && a.DeviceID != ""
}

type botRecord struct {
	LoginKey      string         `json:"login_key,omitempty"`
	Authenticator *Authenticator `json:"authenticator,omitempty"`
}

// BotDatabase is the mutable persisted state of a single bot.
// Thread-safe; write-through on every mutation.
type BotDatabase struct {
	mu   sync.Mutex
	path string
	rec  botRecord
}

// LoadBotDatabase reads the database file for a bot, creating an empty
// record when the file does not exist yet.
func LoadBotDatabase(path string) (*BotDatabase, error) {
	db := &BotDatabase{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return db, nil
		}
		return nil, fmt.Errorf("reading bot database %s: %w", path, err)
	}

	if err := json.Unmarshal(data, &db.rec); err != nil {
		return nil, fmt.Errorf("parsing bot database %s: %w", path, err)
	}
	return db, nil
}

// LoginKey returns the remembered session key, or "" when none is stored.
func (db *BotDatabase) LoginKey() string {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.rec.LoginKey
}

// SetLoginKey stores the remembered session key and persists immediately.
// An empty key clears it (used when the platform rejects an expired key).
func (db *BotDatabase) SetLoginKey(key string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.rec.LoginKey == key {
		return nil
	}
	db.rec.LoginKey = key
	return db.persistLocked()
}

// Authenticator returns the stored enrollment block, or nil.
func (db *BotDatabase) Authenticator() *Authenticator {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.rec.Authenticator == nil {
		return nil
	}
	cp := *db.rec.Authenticator
	return &cp
}

// SetAuthenticator stores the enrollment block and persists immediately.
func (db *BotDatabase) SetAuthenticator(a *Authenticator) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.rec.Authenticator = a
	return db.persistLocked()
}

// HasAuthenticator reports whether a usable enrollment is stored.
func (db *BotDatabase) HasAuthenticator() bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.rec.Authenticator.Valid()
}

func (db *BotDatabase) persistLocked() error {
	data, err := json.MarshalIndent(&db.rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding bot database: %w", err)
	}
	if err := writeFileAtomic(db.path, data, 0o600); err != nil {
		return fmt.Errorf("persisting bot database: %w", err)
	}
	return nil
}
