// SPDX-License-Identifier: MPL-2.0

package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/northstarmanager/nsm/internal/updater"
)

var (
	colorAccent  = lipgloss.Color("#7C3AED")
	colorMuted   = lipgloss.Color("#6B7280")
	colorSubtle  = lipgloss.Color("#9CA3AF")
	colorSuccess = lipgloss.Color("#10B981")
	colorWarning = lipgloss.Color("#F59E0B")
	colorError   = lipgloss.Color("#EF4444")
)

// RenderMarkdown renders md for the terminal. style is a glamour style name;
// empty picks one from the terminal background. width of 0 disables wrapping.
func RenderMarkdown(md, style string, width int) (string, error) {
	opts := []glamour.TermRendererOption{glamour.WithEmoji()}
	if style == "" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle(style))
	}
	if width > 0 {
		opts = append(opts, glamour.WithWordWrap(width))
	}

	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return "", fmt.Errorf("creating markdown renderer: %w", err)
	}
	return r.Render(md)
}

// ReleaseNotes renders the notes of every result that has them, each under
// a heading with the package name and tag.
func ReleaseNotes(results []updater.Result, style string, width int) (string, error) {
	var md strings.Builder
	for _, r := range results {
		if strings.TrimSpace(r.Notes) == "" {
			continue
		}
		fmt.Fprintf(&md, "# %s %s\n\n%s\n\n", r.Name, r.Tag, r.Notes)
	}
	if md.Len() == 0 {
		return "", nil
	}
	return RenderMarkdown(md.String(), style, width)
}

// Summary renders results as a table, one row per package.
func Summary(results []updater.Result) string {
	header := lipgloss.NewStyle().Bold(true).Foreground(colorAccent).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)

	rows := make([][]string, 0, len(results))
	for _, r := range results {
		name := r.Name
		if r.Server != "" {
			name = r.Server + "/" + r.Name
		}
		rows = append(rows, []string{name, r.Group.String(), r.Status.String(), r.Tag})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorMuted)).
		Headers("PACKAGE", "GROUP", "STATUS", "RELEASE").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			if col == 2 && row >= 0 && row < len(results) {
				return cell.Foreground(statusColor(results[row].Status))
			}
			return cell
		})
	return t.Render()
}

func statusColor(s updater.Status) lipgloss.Color {
	switch s {
	case updater.StatusUpdated, updater.StatusSelfQueued:
		return colorSuccess
	case updater.StatusAvailable, updater.StatusNoAsset, updater.StatusMissingAnchor:
		return colorWarning
	case updater.StatusFailed:
		return colorError
	case updater.StatusUpToDate, updater.StatusSkipped:
		return colorSubtle
	}
	return colorSubtle
}
