// Package accountstore persists saved-account metadata and per-account
// encrypted refresh tokens under the application data directory.
//
// Layout:
//
//	accounts.json      metadata for every saved account
//	tokens/<id>.enc    one encrypted refresh token per account
//	last-account.txt   id of the most recently active account
//	session.enc        legacy single-account token, consumed by migration
//
// Disk failures here are never fatal: reads degrade to "absent" and
// writes are logged and dropped, so a broken disk means logging in
// without a saved token rather than a dead application.
package accountstore

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caskmate/caskmate/internal/securestore"
)

// FilePerms restricts store files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating store directories.
const DirPerms = 0o700

// Account is the persisted metadata for one saved account. A metadata
// entry implies, but does not guarantee, that a token blob exists — the
// token is evicted independently on stale-credential detection.
type Account struct {
	ID          string    `json:"id"`
	PersonaName string    `json:"persona_name"`
	AvatarURL   string    `json:"avatar_url"`
	AddedAt     time.Time `json:"added_at"`
}

// Store reads and writes the on-disk account layout.
type Store struct {
	dir    string
	crypt  securestore.Encryptor
	logger *slog.Logger
}

// New returns a store rooted at dir. The directory is created lazily on
// first write.
func New(dir string, crypt securestore.Encryptor, logger *slog.Logger) *Store {
	return &Store{dir: dir, crypt: crypt, logger: logger}
}

func (s *Store) accountsPath() string { return filepath.Join(s.dir, "accounts.json") }
func (s *Store) tokenDir() string     { return filepath.Join(s.dir, "tokens") }
func (s *Store) lastPath() string     { return filepath.Join(s.dir, "last-account.txt") }
func (s *Store) legacyPath() string   { return filepath.Join(s.dir, "session.enc") }

func (s *Store) tokenPath(id string) string {
	return filepath.Join(s.tokenDir(), id+".enc")
}

// List returns all saved accounts. A missing or unreadable metadata file
// yields an empty list.
func (s *Store) List() []Account {
	data, err := os.ReadFile(s.accountsPath())
	if err != nil {
		return nil
	}

	var accounts []Account
	if err := json.Unmarshal(data, &accounts); err != nil {
		s.logger.Warn("account metadata unreadable, treating as empty",
			slog.String("path", s.accountsPath()),
			slog.String("error", err.Error()),
		)

		return nil
	}

	return accounts
}

// Upsert inserts or updates an account entry. An existing entry keeps its
// original AddedAt timestamp; only the mutable fields are refreshed.
func (s *Store) Upsert(a Account) {
	accounts := s.List()

	replaced := false
	for i := range accounts {
		if accounts[i].ID == a.ID {
			a.AddedAt = accounts[i].AddedAt
			accounts[i] = a
			replaced = true

			break
		}
	}

	if !replaced {
		accounts = append(accounts, a)
	}

	s.saveAccounts(accounts)
}

// Remove deletes an account's metadata entry. The token blob, if any, is
// left alone — callers pair Remove with ClearToken when both must go.
func (s *Store) Remove(id string) {
	accounts := s.List()

	filtered := accounts[:0]
	for _, a := range accounts {
		if a.ID != id {
			filtered = append(filtered, a)
		}
	}

	s.saveAccounts(filtered)
}

func (s *Store) saveAccounts(accounts []Account) {
	if accounts == nil {
		accounts = []Account{}
	}

	data, err := json.MarshalIndent(accounts, "", "  ")
	if err != nil {
		s.logger.Warn("encoding account metadata failed", slog.String("error", err.Error()))
		return
	}

	if err := s.writeFileAtomic(s.accountsPath(), data); err != nil {
		s.logger.Warn("saving account metadata failed", slog.String("error", err.Error()))
	}
}

// SetLast records id as the most recently active account.
func (s *Store) SetLast(id string) {
	if err := s.writeFileAtomic(s.lastPath(), []byte(id)); err != nil {
		s.logger.Warn("saving last-account pointer failed", slog.String("error", err.Error()))
	}
}

// Last returns the most recently active account id, if one is recorded.
func (s *Store) Last() (string, bool) {
	data, err := os.ReadFile(s.lastPath())
	if err != nil {
		return "", false
	}

	id := strings.TrimSpace(string(data))

	return id, id != ""
}

// ClearLast removes the last-active pointer.
func (s *Store) ClearLast() {
	if err := os.Remove(s.lastPath()); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("clearing last-account pointer failed", slog.String("error", err.Error()))
	}
}

// writeFileAtomic writes via a temp file in the same directory plus
// rename, so readers never observe a partial file.
func (s *Store) writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, DirPerms); err != nil {
		return fmt.Errorf("accountstore: creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".store-*.tmp")
	if err != nil {
		return fmt.Errorf("accountstore: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("accountstore: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("accountstore: writing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("accountstore: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("accountstore: renaming: %w", err)
	}

	success = true

	return nil
}
