// SPDX-License-Identifier: MPL-2.0

// Package tui holds the terminal pieces of nsm: the Bubble Tea confirm
// prompt used when the release API is rate limited, markdown rendering for
// release notes and the lipgloss table that summarizes an update pass.
package tui
