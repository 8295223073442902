// SPDX-License-Identifier: MPL-2.0

// Package release selects which release of a package should be installed.
//
// It works on release metadata that has already been fetched from a source
// (GitHub or Thunderstore) and performs no I/O: the caller supplies the
// candidate list, the package policy and the observed state of the install
// target, and receives either a Selection or one of ErrNoValidRelease /
// ErrNoValidAsset.
package release
