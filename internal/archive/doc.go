// SPDX-License-Identifier: MPL-2.0

// Package archive merges a downloaded release archive into an install
// directory.
//
// The package root inside the archive is located through an anchor file
// (NorthstarLauncher.exe, the manager executable or a mod's mod.json). The
// path in front of the anchor is stripped so the anchor lands directly in
// the install directory. Files listed as excluded keep their on-disk content
// across updates, and when installing the ecosystem root, mods that do not
// belong to the runtime survive the merge untouched.
//
// Installs are not transactional. Running the same install again converges
// on the same tree, and backups left behind by an interrupted run are put
// back before the next one starts.
package archive
