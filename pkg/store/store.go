// Package store provides crash-safe, lock-protected persistence for the
// sync pipeline's on-disk JSON documents: the content index, sync state,
// number registry, conflict queue, resolution history, state history,
// hierarchy map. The portfolio config is not kept here: pkg/portfolio
// writes it directly with os.WriteFile, without a lock or backup. Every
// write goes through write-to-temp, fsync, rename; every write is
// preceded by a timestamped backup and followed by a prune of expired
// backups; every load and save of a named document is serialised by a
// per-file advisory lock.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

const (
	// DirPermissions is the owner-only permission applied to the store's
	// base and backup directories.
	DirPermissions = 0o700
	// LockTimeout bounds how long a writer or reader waits to acquire a
	// document's advisory lock before giving up with a Locked error.
	LockTimeout = 5 * time.Second
	// BackupRetention is how long timestamped backups are kept before
	// PruneBackups removes them.
	BackupRetention = 30 * 24 * time.Hour
)

// Store persists named JSON documents under a base directory, each one
// individually lockable and individually backed up.
type Store struct {
	baseDir   string
	backupDir string
	clock     func() time.Time
}

// New creates (if absent) the store's base and backup directories with
// owner-only permissions and returns a Store rooted there.
func New(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, DirPermissions); err != nil {
		return nil, &StoreError{Type: "init_error", Message: "failed to create store directory", Err: err, Context: baseDir}
	}
	backupDir := filepath.Join(baseDir, "backups")
	if err := os.MkdirAll(backupDir, DirPermissions); err != nil {
		return nil, &StoreError{Type: "init_error", Message: "failed to create backup directory", Err: err, Context: backupDir}
	}
	return &Store{baseDir: baseDir, backupDir: backupDir, clock: time.Now}, nil
}

func (s *Store) docPath(name string) string {
	return filepath.Join(s.baseDir, name+".json")
}

func (s *Store) lockPath(name string) string {
	return filepath.Join(s.baseDir, "."+name+".lock")
}

// withLock acquires the named document's advisory lock for the duration
// of fn, bounded by LockTimeout.
func (s *Store) withLock(name string, fn func() error) error {
	ctx, cancel := context.WithTimeout(context.Background(), LockTimeout)
	defer cancel()

	lockPath := s.lockPath(name)
	if err := os.MkdirAll(filepath.Dir(lockPath), DirPermissions); err != nil {
		return &StoreError{Type: "init_error", Message: "failed to create lock directory", Err: err, Context: lockPath}
	}

	fl := flock.New(lockPath)
	locked, err := fl.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil || !locked {
		return &StoreError{Type: "locked", Message: fmt.Sprintf("timed out waiting for lock on %s", name), Context: name}
	}
	defer func() { _ = fl.Unlock() }()
	return fn()
}

// Load reads the named document into out. A missing document is reported
// via os.IsNotExist on the wrapped error so callers can distinguish
// "not yet created" from a genuine read failure.
func (s *Store) Load(name string, out interface{}) error {
	return s.withLock(name, func() error {
		path := s.docPath(name)
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(data, out); err != nil {
			return &StoreError{
				Type:    "corrupted",
				Message: fmt.Sprintf("document %s is corrupted, see backups at %s", name, s.backupDir),
				Err:     err,
				Context: path,
			}
		}
		return nil
	})
}

// Exists reports whether the named document has been created yet.
func (s *Store) Exists(name string) bool {
	_, err := os.Stat(s.docPath(name))
	return err == nil
}

// Save backs up the current document (if any), then atomically replaces
// it with v: marshal -> write temp -> fsync -> rename over the original.
// It then runs PruneBackups.
func (s *Store) Save(name string, v interface{}) error {
	return s.withLock(name, func() error {
		path := s.docPath(name)

		if err := os.MkdirAll(filepath.Dir(path), DirPermissions); err != nil {
			return &StoreError{Type: "init_error", Message: "failed to create document directory", Err: err, Context: path}
		}

		if _, err := os.Stat(path); err == nil {
			if err := s.backupLocked(name); err != nil {
				return err
			}
		}

		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return &StoreError{Type: "marshal_error", Message: "failed to marshal document", Err: err, Context: name}
		}

		tmp := path + ".tmp"
		f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
		if err != nil {
			return &StoreError{Type: "write_error", Message: "failed to open temp file", Err: err, Context: tmp}
		}
		if _, err := f.Write(data); err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
			return &StoreError{Type: "write_error", Message: "failed to write temp file", Err: err, Context: tmp}
		}
		if err := f.Sync(); err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
			return &StoreError{Type: "write_error", Message: "failed to fsync temp file", Err: err, Context: tmp}
		}
		if err := f.Close(); err != nil {
			_ = os.Remove(tmp)
			return &StoreError{Type: "write_error", Message: "failed to close temp file", Err: err, Context: tmp}
		}
		if err := os.Rename(tmp, path); err != nil {
			_ = os.Remove(tmp)
			return &StoreError{Type: "write_error", Message: "failed to rename temp file into place", Err: err, Context: path}
		}
		return s.PruneBackups()
	})
}

// backupLocked copies the current document into the backup directory
// under a timestamped name. Caller must already hold the document lock.
func (s *Store) backupLocked(name string) error {
	src, err := os.Open(s.docPath(name))
	if err != nil {
		return &StoreError{Type: "backup_error", Message: "failed to open document for backup", Err: err, Context: name}
	}
	defer func() { _ = src.Close() }()

	stamp := s.clock().UTC().Format("20060102T150405.000000000Z")
	flatName := strings.ReplaceAll(name, "/", "_")
	dst, err := os.Create(filepath.Join(s.backupDir, fmt.Sprintf("%s.%s.json", flatName, stamp)))
	if err != nil {
		return &StoreError{Type: "backup_error", Message: "failed to create backup file", Err: err, Context: name}
	}
	defer func() { _ = dst.Close() }()

	if _, err := io.Copy(dst, src); err != nil {
		return &StoreError{Type: "backup_error", Message: "failed to copy document to backup", Err: err, Context: name}
	}
	return nil
}

// PruneBackups removes backup files older than BackupRetention.
func (s *Store) PruneBackups() error {
	entries, err := os.ReadDir(s.backupDir)
	if err != nil {
		return &StoreError{Type: "prune_error", Message: "failed to list backup directory", Err: err, Context: s.backupDir}
	}

	cutoff := s.clock().Add(-BackupRetention)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			_ = os.Remove(filepath.Join(s.backupDir, entry.Name()))
		}
	}
	return nil
}

// BackupDir returns the directory backups are written to, for error
// messages and diagnostics.
func (s *Store) BackupDir() string { return s.backupDir }
