// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// stashExcluded moves every excluded file that exists into the exclude
// backup dir and returns their cleaned archive-style paths.
func (in *installer) stashExcluded() (map[string]bool, error) {
	kept := make(map[string]bool)
	backup := filepath.Join(in.root, excludeBackupDir)

	for _, raw := range in.opts.ExcludeFiles {
		rel := path.Clean(filepath.ToSlash(strings.TrimSpace(raw)))
		if rel == "" || rel == "." || !isLocal(rel) {
			slog.Warn("ignoring exclude entry outside install dir", "path", raw)
			continue
		}
		if kept[rel] {
			continue
		}

		src := filepath.Join(in.root, filepath.FromSlash(rel))
		if _, err := os.Lstat(src); errors.Is(err, fs.ErrNotExist) {
			continue
		} else if err != nil {
			return nil, fmt.Errorf("checking excluded file: %w", err)
		}

		dst := filepath.Join(backup, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return nil, fmt.Errorf("backing up %s: %w", rel, err)
		}
		if err := os.Rename(src, dst); err != nil {
			return nil, fmt.Errorf("backing up %s: %w", rel, err)
		}
		kept[rel] = true
		in.res.Preserved = append(in.res.Preserved, rel)
	}
	return kept, nil
}

// restoreExcluded puts every backed up file back in place, replacing the
// copy the archive brought along, and removes the backup dir.
func (in *installer) restoreExcluded() error {
	backup := filepath.Join(in.root, excludeBackupDir)

	err := filepath.WalkDir(backup, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(backup, p)
		if err != nil {
			return err
		}
		return replace(p, filepath.Join(in.root, rel))
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("restoring excluded files: %w", err)
	}
	return removeIfExists(backup)
}

// stashForeignMods moves mod directories that do not carry the reserved
// prefix out of the mods dir.
func (in *installer) stashForeignMods() error {
	modsDir := filepath.Join(in.root, filepath.FromSlash(in.opts.ModsSubpath))
	entries, err := os.ReadDir(modsDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading mods dir: %w", err)
	}

	backup := filepath.Join(in.root, foreignBackupDir)
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), in.opts.ReservedPrefix) {
			continue
		}
		if err := os.MkdirAll(backup, 0o755); err != nil {
			return fmt.Errorf("backing up mod %s: %w", e.Name(), err)
		}
		if err := os.Rename(filepath.Join(modsDir, e.Name()), filepath.Join(backup, e.Name())); err != nil {
			return fmt.Errorf("backing up mod %s: %w", e.Name(), err)
		}
		in.res.ForeignMods = append(in.res.ForeignMods, e.Name())
	}
	return nil
}

// restoreForeignMods moves stashed mods back. A stashed mod replaces a
// directory of the same name shipped by the archive.
func (in *installer) restoreForeignMods() error {
	backup := filepath.Join(in.root, foreignBackupDir)
	entries, err := os.ReadDir(backup)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading mod backup: %w", err)
	}

	modsDir := filepath.Join(in.root, filepath.FromSlash(in.opts.ModsSubpath))
	for _, e := range entries {
		if err := replace(filepath.Join(backup, e.Name()), filepath.Join(modsDir, e.Name())); err != nil {
			return fmt.Errorf("restoring mod %s: %w", e.Name(), err)
		}
	}
	return removeIfExists(backup)
}

// recoverStaleBackups restores backups left behind by an interrupted
// install so they are not lost or mixed into this one.
func (in *installer) recoverStaleBackups() error {
	if _, err := os.Stat(filepath.Join(in.root, excludeBackupDir)); err == nil {
		slog.Warn("restoring excluded files from an interrupted install", "dir", in.root)
		if err := in.restoreExcluded(); err != nil {
			return err
		}
	}
	if !in.opts.EcosystemRoot {
		return nil
	}
	if _, err := os.Stat(filepath.Join(in.root, foreignBackupDir)); err == nil {
		slog.Warn("restoring mods from an interrupted install", "dir", in.root)
		return in.restoreForeignMods()
	}
	return nil
}

// replace moves src to dst, removing whatever is at dst first.
func replace(src, dst string) error {
	if err := os.RemoveAll(dst); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.Rename(src, dst)
}

func removeIfExists(p string) error {
	if err := os.RemoveAll(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
