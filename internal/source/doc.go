// SPDX-License-Identifier: MPL-2.0

// Package source fetches release metadata and release assets for packages.
//
// Two backends exist: GitHub Releases and the Thunderstore package API. Both
// implement Source, which yields release.Candidate values ordered newest
// first, so the resolver never branches on where a package is hosted.
// Client.Open probes Thunderstore first and falls back to GitHub when the
// package is unknown there.
//
//   - client.go: Client, options, shared request plumbing, rate limit errors
//   - github.go: GitHub Releases listing with Link-header pagination
//   - thunderstore.go: Thunderstore "latest version" lookup
//   - download.go: asset download into a temp file with a progress bar
package source
