// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/northstarmanager/nsm/internal/testutil"
)

type entry = testutil.ZipEntry

func northstarRelease() []entry {
	return []entry{
		{Name: "NorthstarLauncher.exe", Body: "launcher v2"},
		{Name: "ns_startup_args.txt", Body: "-multiple"},
		{Name: "R2Northstar/"},
		{Name: "R2Northstar/mods/"},
		{Name: "R2Northstar/mods/Northstar.Client/mod.json", Body: `{"Name": "Northstar.Client"}`},
		{Name: "R2Northstar/mods/Northstar.Custom/mod.json", Body: `{"Name": "Northstar.Custom"}`},
	}
}

func northstarOptions(dir string, exclude ...string) Options {
	return Options{
		InstallDir:     dir,
		AnchorFile:     "NorthstarLauncher.exe",
		ExcludeFiles:   exclude,
		EcosystemRoot:  true,
		ModsSubpath:    "R2Northstar/mods",
		ReservedPrefix: "Northstar.",
	}
}

func TestInstall_ManifestInPackageFolder(t *testing.T) {
	t.Parallel()

	mods := filepath.Join(t.TempDir(), "mods")
	zr := testutil.ZipReader(t,
		entry{Name: "modpkg/"},
		entry{Name: "modpkg/mod.json", Body: `{"Name": "modpkg"}`},
		entry{Name: "modpkg/file.dll", Body: "binary"},
	)

	res, err := Install(zr, Options{InstallDir: mods, AnchorFile: "mod.json"})
	if err != nil {
		t.Fatalf("Install: %v", err)
	}

	want := map[string]string{
		"mod.json": `{"Name": "modpkg"}`,
		"file.dll": "binary",
	}
	if diff := cmp.Diff(want, testutil.SnapshotDir(t, mods)); diff != "" {
		t.Errorf("install tree mismatch (-want +got):\n%s", diff)
	}
	if res.Prefix != "modpkg" || res.Anchor != "modpkg/mod.json" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestInstall_SourceArchiveStripsRepoFolder(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "R2Northstar", "mods", "FancyHud")
	testutil.MustWriteFile(t, filepath.Join(dir, "old.nut"), "removed upstream")
	testutil.MustWriteFile(t, filepath.Join(dir, "config.json"), "user settings")
	testutil.MustWriteFile(t, filepath.Join(dir, "notes.bak"), "kept")

	zr := testutil.ZipReader(t,
		entry{Name: "S2Mods-FancyHud-abc123/"},
		entry{Name: "S2Mods-FancyHud-abc123/README.md", Body: "outside the mod"},
		entry{Name: "S2Mods-FancyHud-abc123/FancyHud/mod.json", Body: "manifest"},
		entry{Name: "S2Mods-FancyHud-abc123/FancyHud/config.json", Body: "defaults"},
		entry{Name: "S2Mods-FancyHud-abc123/FancyHud/mod/hud.nut", Body: "hud"},
	)

	res, err := Install(zr, Options{InstallDir: dir, AnchorFile: "mod.json", ExcludeFiles: []string{"config.json"}})
	if err != nil {
		t.Fatalf("Install: %v", err)
	}

	want := map[string]string{
		"mod.json":    "manifest",
		"config.json": "user settings",
		"mod":         "<dir>",
		"mod/hud.nut": "hud",
		"notes.bak":   "kept",
	}
	if diff := cmp.Diff(want, testutil.SnapshotDir(t, dir)); diff != "" {
		t.Errorf("install tree mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"config.json"}, res.Preserved); diff != "" {
		t.Errorf("preserved mismatch (-want +got):\n%s", diff)
	}
}

func TestInstall_ExclusionLaw(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.MustWriteFile(t, filepath.Join(dir, "ns_startup_args.txt"), "-dedicated +my_args")

	if _, err := Install(testutil.ZipReader(t, northstarRelease()...), northstarOptions(dir, "ns_startup_args.txt")); err != nil {
		t.Fatalf("Install: %v", err)
	}

	if got := testutil.MustReadFile(t, filepath.Join(dir, "ns_startup_args.txt")); got != "-dedicated +my_args" {
		t.Errorf("excluded file was overwritten: %q", got)
	}
	if got := testutil.MustReadFile(t, filepath.Join(dir, "NorthstarLauncher.exe")); got != "launcher v2" {
		t.Errorf("launcher = %q, want archive copy", got)
	}
	if testutil.Exists(t, filepath.Join(dir, excludeBackupDir)) {
		t.Errorf("exclude backup dir left behind")
	}
}

func TestInstall_FirstInstallLaw(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if _, err := Install(testutil.ZipReader(t, northstarRelease()...), northstarOptions(dir, "ns_startup_args.txt")); err != nil {
		t.Fatalf("Install: %v", err)
	}

	if got := testutil.MustReadFile(t, filepath.Join(dir, "ns_startup_args.txt")); got != "-multiple" {
		t.Errorf("first install should take the archive copy, got %q", got)
	}
}

func TestInstall_AnchorMissLeavesTreeUntouched(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.MustWriteFile(t, filepath.Join(dir, "NorthstarLauncher.exe"), "launcher v1")
	testutil.MustWriteFile(t, filepath.Join(dir, "R2Northstar", "mods", "CoolMod", "mod.json"), "mine")
	before := testutil.SnapshotDir(t, dir)

	zr := testutil.ZipReader(t,
		entry{Name: "readme.txt", Body: "not a Northstar release"},
		entry{Name: "R2Northstar/mods/Other/mod.json", Body: "x"},
	)
	_, err := Install(zr, northstarOptions(dir, "ns_startup_args.txt"))
	if !errors.Is(err, ErrFileNotInZip) {
		t.Fatalf("expected ErrFileNotInZip, got %v", err)
	}

	if diff := cmp.Diff(before, testutil.SnapshotDir(t, dir)); diff != "" {
		t.Errorf("install dir changed after anchor miss (-before +after):\n%s", diff)
	}
}

func TestInstall_AnchorMissDoesNotCreateInstallDir(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "missing")
	_, err := Install(testutil.ZipReader(t, entry{Name: "a.txt", Body: "a"}), Options{InstallDir: dir, AnchorFile: "mod.json"})
	if !errors.Is(err, ErrFileNotInZip) {
		t.Fatalf("expected ErrFileNotInZip, got %v", err)
	}
	if testutil.Exists(t, dir) {
		t.Errorf("install dir was created for a failed install")
	}
}

func TestInstall_ForeignModPreservation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	mods := filepath.Join(dir, "R2Northstar", "mods")
	testutil.MustWriteFile(t, filepath.Join(mods, "CoolMod", "mod.json"), "mine")
	testutil.MustWriteFile(t, filepath.Join(mods, "CoolMod", "mod", "scripts", "a.nut"), "script")
	testutil.MustWriteFile(t, filepath.Join(mods, "Northstar.Client", "stale.txt"), "old runtime file")

	release := append(northstarRelease(), entry{Name: "R2Northstar/mods/CoolMod/mod.json", Body: "bundled copy"})
	res, err := Install(testutil.ZipReader(t, release...), northstarOptions(dir))
	if err != nil {
		t.Fatalf("Install: %v", err)
	}

	if got := testutil.MustReadFile(t, filepath.Join(mods, "CoolMod", "mod.json")); got != "mine" {
		t.Errorf("foreign mod manifest = %q, want untouched", got)
	}
	if got := testutil.MustReadFile(t, filepath.Join(mods, "CoolMod", "mod", "scripts", "a.nut")); got != "script" {
		t.Errorf("foreign mod script = %q, want untouched", got)
	}
	if got := testutil.MustReadFile(t, filepath.Join(mods, "Northstar.Client", "mod.json")); got != `{"Name": "Northstar.Client"}` {
		t.Errorf("runtime mod not updated: %q", got)
	}
	if diff := cmp.Diff([]string{"CoolMod"}, res.ForeignMods); diff != "" {
		t.Errorf("foreign mods mismatch (-want +got):\n%s", diff)
	}
	if testutil.Exists(t, filepath.Join(dir, foreignBackupDir)) {
		t.Errorf("foreign mod backup dir left behind")
	}
}

func TestInstall_EcosystemRootKeepsGameFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.MustWriteFile(t, filepath.Join(dir, "Titanfall2.exe"), "game")
	testutil.MustWriteFile(t, filepath.Join(dir, "r2", "paks", "common.rpak"), "pak")
	testutil.MustWriteFile(t, filepath.Join(dir, "NorthstarLauncher.exe"), "launcher v1")

	if _, err := Install(testutil.ZipReader(t, northstarRelease()...), northstarOptions(dir)); err != nil {
		t.Fatalf("Install: %v", err)
	}

	if got := testutil.MustReadFile(t, filepath.Join(dir, "Titanfall2.exe")); got != "game" {
		t.Errorf("game executable = %q, want untouched", got)
	}
	if got := testutil.MustReadFile(t, filepath.Join(dir, "r2", "paks", "common.rpak")); got != "pak" {
		t.Errorf("game data = %q, want untouched", got)
	}
	if got := testutil.MustReadFile(t, filepath.Join(dir, "NorthstarLauncher.exe")); got != "launcher v2" {
		t.Errorf("launcher = %q, want replaced", got)
	}
}

func TestInstall_Idempotent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.MustWriteFile(t, filepath.Join(dir, "ns_startup_args.txt"), "mine")
	testutil.MustWriteFile(t, filepath.Join(dir, "R2Northstar", "mods", "CoolMod", "mod.json"), "mine")
	opts := northstarOptions(dir, "ns_startup_args.txt")

	if _, err := Install(testutil.ZipReader(t, northstarRelease()...), opts); err != nil {
		t.Fatalf("first Install: %v", err)
	}
	first := testutil.SnapshotDir(t, dir)

	if _, err := Install(testutil.ZipReader(t, northstarRelease()...), opts); err != nil {
		t.Fatalf("second Install: %v", err)
	}
	if diff := cmp.Diff(first, testutil.SnapshotDir(t, dir)); diff != "" {
		t.Errorf("re-install changed the tree (-first +second):\n%s", diff)
	}
}

func TestInstall_RecoversInterruptedBackup(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	// An earlier run died after stashing the user's file.
	testutil.MustWriteFile(t, filepath.Join(dir, excludeBackupDir, "ns_startup_args.txt"), "mine")
	testutil.MustWriteFile(t, filepath.Join(dir, "ns_startup_args.txt"), "-multiple")

	if _, err := Install(testutil.ZipReader(t, northstarRelease()...), northstarOptions(dir, "ns_startup_args.txt")); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if got := testutil.MustReadFile(t, filepath.Join(dir, "ns_startup_args.txt")); got != "mine" {
		t.Errorf("interrupted backup not recovered, got %q", got)
	}
}

func TestInstallFile(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	zipPath := filepath.Join(tmp, "release.zip")
	testutil.WriteZip(t, zipPath, northstarRelease()...)

	dir := filepath.Join(tmp, "game")
	res, err := InstallFile(zipPath, northstarOptions(dir))
	if err != nil {
		t.Fatalf("InstallFile: %v", err)
	}
	if res.Files != 4 {
		t.Errorf("Files = %d, want 4", res.Files)
	}
}

func TestFindAnchor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		entries    []entry
		anchor     string
		wantEntry  string
		wantPrefix string
		wantErr    bool
	}{
		{
			name:      "top level",
			entries:   []entry{{Name: "mod.json", Body: "x"}},
			anchor:    "mod.json",
			wantEntry: "mod.json",
		},
		{
			name:       "nested twice",
			entries:    []entry{{Name: "repo-sha/Mod/mod.json", Body: "x"}},
			anchor:     "mod.json",
			wantEntry:  "repo-sha/Mod/mod.json",
			wantPrefix: "repo-sha/Mod",
		},
		{
			name:       "first match wins",
			entries:    []entry{{Name: "a/mod.json", Body: "x"}, {Name: "mod.json", Body: "y"}},
			anchor:     "mod.json",
			wantEntry:  "a/mod.json",
			wantPrefix: "a",
		},
		{
			name:    "directory named like the anchor",
			entries: []entry{{Name: "mod.json/"}},
			anchor:  "mod.json",
			wantErr: true,
		},
		{
			name:    "partial basename",
			entries: []entry{{Name: "a/notmod.json", Body: "x"}},
			anchor:  "mod.json",
			wantErr: true,
		},
		{
			name:       "anchor with directories",
			entries:    []entry{{Name: "pkg/bin/nsm.exe", Body: "x"}},
			anchor:     "bin/nsm.exe",
			wantEntry:  "pkg/bin/nsm.exe",
			wantPrefix: "pkg",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			zr := testutil.ZipReader(t, tt.entries...)
			gotEntry, gotPrefix, err := findAnchor(zr.File, tt.anchor)
			if tt.wantErr {
				if !errors.Is(err, ErrFileNotInZip) {
					t.Fatalf("expected ErrFileNotInZip, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if gotEntry != tt.wantEntry || gotPrefix != tt.wantPrefix {
				t.Errorf("findAnchor = (%q, %q), want (%q, %q)", gotEntry, gotPrefix, tt.wantEntry, tt.wantPrefix)
			}
		})
	}
}

func TestIsLocal(t *testing.T) {
	t.Parallel()

	tests := map[string]bool{
		"a/b.txt":         true,
		"a/":              true,
		"./a":             true,
		"a/../b":          true,
		"../evil":         false,
		"a/../../evil":    false,
		"/etc/passwd":     false,
		"":                false,
		"..":              false,
		"mods/../../../x": false,
	}
	for name, want := range tests {
		if got := isLocal(name); got != want {
			t.Errorf("isLocal(%q) = %v, want %v", name, got, want)
		}
	}
}
