// SPDX-License-Identifier: MPL-2.0

// Package config handles nsm's configuration using Viper with CUE as the file format.
//
// Configuration is read from config.cue in the game directory (or the file given
// with --config), validated against an embedded CUE schema and decoded through
// Viper so defaults and the GITHUB_TOKEN environment variable apply. The file
// also carries the state nsm persists between runs: the last_update time of
// every package. Save writes the whole document back once a run has finished.
//
// BuildPlan turns a Config into the packages an update pass processes, and
// ImportLegacy converts the YAML layout used by older manager versions.
package config
