package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gatekeep/internal/autherr"
	"gatekeep/pkg/logging"
)

const (
	// DefaultDir is the storage directory relative to the user's home.
	DefaultDir = ".config/gatekeep"

	// DefaultFileName is the credential file name inside the storage directory.
	DefaultFileName = "credential.json"

	dirPerm  = 0700
	filePerm = 0600
)

// Store persists at most one credential.
type Store interface {
	// Save atomically replaces the stored credential.
	Save(cred *Credential) error

	// Load returns the stored credential, or nil, nil when nothing usable is
	// stored.
	Load() (*Credential, error)

	// Clear removes the stored credential. Clearing an empty store succeeds.
	Clear() error
}

// DefaultPath returns ~/.config/gatekeep/credential.json.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, DefaultDir, DefaultFileName), nil
}

// FileStore is a Store backed by a single JSON file.
//
// SECURITY: token values are never logged, only presence flags and expiry.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a store at path. An empty path selects DefaultPath.
// The parent directory is created lazily on first Save.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return &FileStore{path: path}, nil
}

// Path returns the file the store writes to.
func (s *FileStore) Path() string {
	return s.path
}

// Save writes cred to a temporary file in the target directory and renames it
// over the previous record.
func (s *FileStore) Save(cred *Credential) error {
	if err := cred.Validate(); err != nil {
		return &autherr.PersistenceError{Op: "save", Path: s.path, Err: err}
	}

	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return &autherr.PersistenceError{Op: "encode", Path: s.path, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeAtomic(data); err != nil {
		slog.Warn("SECURITY_AUDIT: credential storage failed",
			"event", "credential_save_failed",
			"path", s.path,
			"error", err.Error(),
		)
		return &autherr.PersistenceError{Op: "save", Path: s.path, Err: err}
	}

	slog.Info("SECURITY_AUDIT: credential stored",
		"event", "credential_saved",
		"user_id", cred.UserID,
		"expires_at", cred.ExpiresAt.Format(time.RFC3339),
		"has_refresh_token", cred.RefreshToken != "",
	)
	return nil
}

func (s *FileStore) writeAtomic(data []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("failed to create credential directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := tmp.Chmod(filePerm); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set credential file permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write credential file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync credential file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close credential file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to replace credential file: %w", err)
	}
	committed = true
	return nil
}

// Load reads the stored credential. A missing file yields nil, nil. A file
// that cannot be parsed, or parses into a credential that violates the
// access-token/expiry invariant, is removed and also yields nil, nil.
func (s *FileStore) Load() (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, &autherr.PersistenceError{Op: "load", Path: s.path, Err: err}
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		s.discardCorrupt(err)
		return nil, nil
	}
	if err := cred.Validate(); err != nil {
		s.discardCorrupt(err)
		return nil, nil
	}

	if cred.Degraded() {
		logging.Warn("CredentialStore", "Stored credential for %s has no refresh token", cred.Email)
	}
	return &cred, nil
}

func (s *FileStore) discardCorrupt(cause error) {
	logging.Warn("CredentialStore", "Discarding unreadable credential at %s: %v", s.path, cause)
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.Error("CredentialStore", err, "Failed to remove unreadable credential")
	}
}

// Clear removes the credential file.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &autherr.PersistenceError{Op: "clear", Path: s.path, Err: err}
	}

	slog.Info("SECURITY_AUDIT: credential deleted",
		"event", "credential_cleared",
		"path", s.path,
	)
	return nil
}

// MemoryStore is a process-local Store, used when persistence is disabled.
type MemoryStore struct {
	mu   sync.Mutex
	cred *Credential
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Save stores a copy of cred.
func (s *MemoryStore) Save(cred *Credential) error {
	if err := cred.Validate(); err != nil {
		return &autherr.PersistenceError{Op: "save", Path: "memory", Err: err}
	}
	c := *cred
	s.mu.Lock()
	s.cred = &c
	s.mu.Unlock()
	return nil
}

// Load returns a copy of the stored credential, or nil.
func (s *MemoryStore) Load() (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cred == nil {
		return nil, nil
	}
	c := *s.cred
	return &c, nil
}

// Clear drops the stored credential.
func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	s.cred = nil
	s.mu.Unlock()
	return nil
}
