// SPDX-License-Identifier: MPL-2.0

// Package updater runs an update pass over every configured package.
//
// Packages are processed one at a time in a fixed group order: the nsm
// executable itself, then the Northstar client and client mods, then each
// dedicated server's mods followed by that server's config rewrite. A
// package that is up to date, has a malformed release or ships an archive
// without its anchor file is reported and skipped; the pass carries on.
//
// Two conditions end a pass early. A rate-limited release API asks the
// Prompter whether to wait and restart the whole pass or to abort. A new
// release of nsm itself stages the replacement executable and halts the
// pass with the DeferredAction that swaps it in after exit.
package updater
