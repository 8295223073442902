// SPDX-License-Identifier: MPL-2.0

// Package selfupdate replaces the running nsm executable.
//
// A running executable cannot overwrite itself on every platform, so the
// Coordinator stages the new binary next to the old one as "<target>.new"
// and returns a DeferredAction. The caller exits and hands the action to
// Start, which runs it detached: wait, delete the old file, move the new one
// into place and relaunch with the original arguments.
//
//   - coordinator.go: the Idle → ResolvingSelf → Downloaded → Queued →
//     HaltRequested state machine
//   - action.go: DeferredAction and its rendering to a platform command
//   - checksum.go: SHA256 verification against a release's checksums.txt
//   - executable.go: locating the running executable
package selfupdate
