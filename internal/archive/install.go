// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

const (
	// excludeBackupDir holds excluded files while an archive is extracted.
	// The ".bak" suffix keeps it out of the top-level cleanup.
	excludeBackupDir = ".nsm-exclude.bak"

	// foreignBackupDir holds third-party mods while the runtime is extracted.
	foreignBackupDir = ".nsm-foreign-mods.bak"

	// stagingPattern names the temp dir wrapped archives are extracted into.
	stagingPattern = ".nsm-extract-*"
)

var (
	// ErrFileNotInZip is returned when the archive has no entry matching the
	// anchor file. Nothing on disk has been touched when it is returned.
	ErrFileNotInZip = errors.New("anchor file not found in archive")

	// ErrUnsafePath is returned for entries that would land outside the
	// install directory.
	ErrUnsafePath = errors.New("unsafe path in archive")
)

type (
	// Options describes where and how an archive is installed.
	Options struct {
		// InstallDir is the directory the package root is merged into.
		InstallDir string
		// AnchorFile locates the package root inside the archive.
		AnchorFile string
		// ExcludeFiles are paths relative to InstallDir whose on-disk content
		// wins over the archive's copy.
		ExcludeFiles []string
		// EcosystemRoot marks the runtime package whose install tree also
		// hosts independently installed mods.
		EcosystemRoot bool
		// ModsSubpath is the mods directory relative to InstallDir. Only used
		// with EcosystemRoot.
		ModsSubpath string
		// ReservedPrefix marks mod directories owned by the runtime package.
		ReservedPrefix string
	}

	// Result summarizes a finished install.
	Result struct {
		// Anchor is the archive path of the matched anchor entry.
		Anchor string
		// Prefix is the archive path that was stripped, empty for flat archives.
		Prefix string
		// Files is the number of files written.
		Files int
		// Preserved lists the excluded files whose existing content was kept.
		Preserved []string
		// ForeignMods lists the third-party mod directories that were carried
		// over. Only set for the ecosystem root.
		ForeignMods []string
	}

	installer struct {
		root string
		opts Options
		res  Result
	}
)

// InstallFile opens the zip archive at zipPath and installs it.
func InstallFile(zipPath string, opts Options) (_ Result, err error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return Result{}, fmt.Errorf("opening archive: %w", err)
	}
	defer func() {
		if closeErr := zr.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	return Install(&zr.Reader, opts)
}

// Install merges zr into opts.InstallDir. It fails with ErrFileNotInZip or
// ErrUnsafePath before making any change on disk.
func Install(zr *zip.Reader, opts Options) (Result, error) {
	anchor, prefix, err := findAnchor(zr.File, opts.AnchorFile)
	if err != nil {
		return Result{}, err
	}
	if err := validateEntries(zr.File); err != nil {
		return Result{}, err
	}

	root, err := filepath.Abs(opts.InstallDir)
	if err != nil {
		return Result{}, fmt.Errorf("resolving install dir: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return Result{}, fmt.Errorf("creating install dir: %w", err)
	}

	in := &installer{root: root, opts: opts, res: Result{Anchor: anchor, Prefix: prefix}}
	if err := in.recoverStaleBackups(); err != nil {
		return Result{}, err
	}
	return in.run(zr)
}

func (in *installer) run(zr *zip.Reader) (Result, error) {
	slog.Debug("installing archive", "dir", in.root, "anchor", in.res.Anchor, "prefix", in.res.Prefix)

	if in.opts.EcosystemRoot {
		if err := in.stashForeignMods(); err != nil {
			return in.res, err
		}
	}

	kept, err := in.stashExcluded()
	if err != nil {
		return in.res, err
	}

	if in.res.Prefix == "" {
		err = in.extractFlat(zr, kept)
	} else {
		err = in.extractWrapped(zr)
	}
	if err != nil {
		return in.res, err
	}

	if err := in.restoreExcluded(); err != nil {
		return in.res, err
	}
	if in.opts.EcosystemRoot {
		if err := in.restoreForeignMods(); err != nil {
			return in.res, err
		}
	}
	return in.res, nil
}

// findAnchor returns the first non-directory entry matching anchor and the
// archive path in front of it.
func findAnchor(files []*zip.File, anchor string) (entry, prefix string, err error) {
	anchor = strings.Trim(path.Clean(filepath.ToSlash(anchor)), "/")
	for _, f := range files {
		if f.FileInfo().IsDir() {
			continue
		}
		name := path.Clean(f.Name)
		if name == anchor || strings.HasSuffix(name, "/"+anchor) {
			prefix = strings.TrimSuffix(strings.TrimSuffix(name, anchor), "/")
			return name, prefix, nil
		}
	}
	return "", "", fmt.Errorf("%w: %s", ErrFileNotInZip, anchor)
}

func validateEntries(files []*zip.File) error {
	for _, f := range files {
		if !isLocal(f.Name) {
			return fmt.Errorf("%w: %s", ErrUnsafePath, f.Name)
		}
	}
	return nil
}

// isLocal reports whether the slash-separated name stays inside its root.
func isLocal(name string) bool {
	if name == "" || path.IsAbs(name) {
		return false
	}
	clean := path.Clean(name)
	return clean != ".." && !strings.HasPrefix(clean, "../") && filepath.IsLocal(filepath.FromSlash(clean))
}

// extractFlat writes every entry under the install dir. Excluded files that
// existed before the install are skipped.
func (in *installer) extractFlat(zr *zip.Reader, kept map[string]bool) error {
	for _, f := range zr.File {
		name := path.Clean(f.Name)
		if kept[name] {
			continue
		}
		if err := in.writeEntry(in.root, f, name); err != nil {
			return err
		}
	}
	return nil
}

// extractWrapped extracts only the entries under the prefix into a staging
// dir, clears the install dir except for backups and moves the package root
// up into place.
func (in *installer) extractWrapped(zr *zip.Reader) (err error) {
	staging, err := os.MkdirTemp(in.root, stagingPattern)
	if err != nil {
		return fmt.Errorf("creating staging dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(staging); rmErr != nil && err == nil {
			err = rmErr
		}
	}()

	under := in.res.Prefix + "/"
	for _, f := range zr.File {
		name := path.Clean(f.Name)
		if !strings.HasPrefix(name, under) {
			continue
		}
		if err := in.writeEntry(staging, f, name); err != nil {
			return err
		}
	}

	// The ecosystem root is the game directory itself and is only merged into.
	if !in.opts.EcosystemRoot {
		if err := clearTopLevel(in.root, filepath.Base(staging)); err != nil {
			return err
		}
	}

	src := filepath.Join(staging, filepath.FromSlash(in.res.Prefix))
	entries, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("reading staged package: %w", err)
	}
	for _, e := range entries {
		if err := replace(filepath.Join(src, e.Name()), filepath.Join(in.root, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// clearTopLevel removes every entry of dir except ".bak" backups and keep.
func clearTopLevel(dir, keep string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading install dir: %w", err)
	}
	for _, e := range entries {
		if e.Name() == keep || strings.HasSuffix(e.Name(), ".bak") {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return fmt.Errorf("removing old %s: %w", e.Name(), err)
		}
	}
	return nil
}

func (in *installer) writeEntry(dir string, f *zip.File, name string) error {
	destPath := filepath.Join(dir, filepath.FromSlash(name))

	relPath, relErr := filepath.Rel(dir, destPath)
	if relErr != nil || strings.HasPrefix(relPath, "..") {
		return fmt.Errorf("%w: %s", ErrUnsafePath, f.Name)
	}

	if f.FileInfo().IsDir() {
		if err := os.MkdirAll(destPath, 0o755); err != nil {
			return fmt.Errorf("creating directory: %w", err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}
	if err := extractFile(f, destPath); err != nil {
		return fmt.Errorf("extracting %s: %w", f.Name, err)
	}
	in.res.Files++
	return nil
}

func extractFile(f *zip.File, destPath string) (err error) {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rc.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}

	// A previous file may be read-only; replacing it by path avoids that.
	if rmErr := os.Remove(destPath); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
		return rmErr
	}

	destFile, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := destFile.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	//nolint:gosec // G110: archives come from the configured release sources.
	_, err = io.Copy(destFile, rc)
	return err
}
