package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Snapshot copies every persisted document into backups/pre-sync-<ts>/,
// preserving relative subdirectories (e.g. "conflicts/pending.json"),
// for the sync engine's pre-apply snapshot (spec §4.7 step 1). It
// returns the snapshot's label, used later to Restore or discard it.
func (s *Store) Snapshot() (string, error) {
	label := fmt.Sprintf("pre-sync-%s", s.clock().UTC().Format("20060102T150405.000000000Z"))
	dir := filepath.Join(s.backupDir, label)
	if err := os.MkdirAll(dir, DirPermissions); err != nil {
		return "", &StoreError{Type: "backup_error", Message: "failed to create snapshot directory", Err: err, Context: dir}
	}

	err := filepath.Walk(s.baseDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if path == s.backupDir {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".json" {
			return nil
		}
		rel, err := filepath.Rel(s.baseDir, path)
		if err != nil {
			return err
		}
		dst := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(dst), DirPermissions); err != nil {
			return err
		}
		return copyFile(path, dst)
	})
	if err != nil {
		return "", &StoreError{Type: "backup_error", Message: "failed to snapshot state directory", Err: err, Context: dir}
	}
	return label, nil
}

// Restore copies every file under the named snapshot back over the
// live documents, implementing the rollback half of spec §4.7 step 3 /
// §8 law 6 (atomic apply: after a failed apply, every persistent state
// file is byte-identical to the pre-apply snapshot).
func (s *Store) Restore(label string) error {
	dir := filepath.Join(s.backupDir, label)
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		dst := filepath.Join(s.baseDir, rel)
		if err := os.MkdirAll(filepath.Dir(dst), DirPermissions); err != nil {
			return err
		}
		return copyFile(path, dst)
	})
}

// SnapshotDir returns the absolute directory a given snapshot label was
// written to, for callers (e.g. "rollback" CLI) that list or inspect
// snapshots directly.
func (s *Store) SnapshotDir(label string) string {
	return filepath.Join(s.backupDir, label)
}

// LatestSnapshot returns the most recently created "pre-sync-*" label,
// by lexical (and therefore chronological, given the timestamp format)
// ordering, or ok=false if none exist.
func (s *Store) LatestSnapshot() (string, bool, error) {
	entries, err := os.ReadDir(s.backupDir)
	if err != nil {
		return "", false, &StoreError{Type: "backup_error", Message: "failed to list backup directory", Err: err, Context: s.backupDir}
	}
	best := ""
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if len(e.Name()) >= len("pre-sync-") && e.Name()[:len("pre-sync-")] == "pre-sync-" {
			if e.Name() > best {
				best = e.Name()
			}
		}
	}
	if best == "" {
		return "", false, nil
	}
	return best, true, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	_, err = io.Copy(out, in)
	return err
}
