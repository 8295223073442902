// SPDX-License-Identifier: MPL-2.0

// Package testutil provides helpers shared by package tests: Must* wrappers
// that fail the test on error, in-memory zip fixtures, directory snapshots
// for byte-identical comparisons and a fake clock.
package testutil
