// SPDX-License-Identifier: MPL-2.0

// Package servercfg rewrites convar lines in a dedicated server's
// autoexec_ns_server.cfg.
package servercfg

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DefaultPath is the server config path relative to a server's game dir.
const DefaultPath = "R2Northstar/mods/Northstar.CustomServers/mod/cfg/autoexec_ns_server.cfg"

// Convar is one console variable assignment.
type Convar struct {
	Name  string
	Value string
}

// Line renders the convar the way Source config files write it.
func (c Convar) Line() string {
	return c.Name + ` "` + strings.ReplaceAll(c.Value, `"`, "") + `"`
}

// Apply returns content with every line that sets one of convars replaced
// and missing convars appended in order. Other lines, comments and the line
// ending style are kept.
func Apply(content string, convars []Convar) string {
	eol := "\n"
	if strings.Contains(content, "\r\n") {
		eol = "\r\n"
	}
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	trailing := len(lines) > 0 && lines[len(lines)-1] == ""
	if trailing {
		lines = lines[:len(lines)-1]
	}

	written := make([]bool, len(convars))
	for i, line := range lines {
		name, comment := parseLine(line)
		if name == "" {
			continue
		}
		for j, cv := range convars {
			if !strings.EqualFold(name, cv.Name) {
				continue
			}
			lines[i] = cv.Line() + comment
			written[j] = true
			break
		}
	}

	for j, cv := range convars {
		if !written[j] {
			lines = append(lines, cv.Line())
		}
	}
	return strings.Join(lines, eol) + eol
}

// Rewrite applies convars to the file at path, creating it when missing.
// The file is replaced atomically.
func Rewrite(path string, convars []Convar) (err error) {
	if len(convars) == 0 {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("reading server config: %w", err)
	}

	out := Apply(string(data), convars)
	if out == string(data) {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating server config dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".nsm-cfg-*")
	if err != nil {
		return fmt.Errorf("writing server config: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.WriteString(out); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing server config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing server config: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing server config: %w", err)
	}
	return nil
}

// parseLine returns the convar a line sets and its trailing comment, if
// any. Blank lines and comment-only lines return an empty name.
func parseLine(line string) (name, comment string) {
	body := line
	if idx := commentStart(line); idx >= 0 {
		body, comment = line[:idx], line[idx:]
		if trimmed := strings.TrimRight(body, " \t"); len(trimmed) < len(body) {
			comment = body[len(trimmed):] + comment
			body = trimmed
		}
	}
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return "", ""
	}
	return fields[0], comment
}

// commentStart returns the index of the first "//" outside double quotes.
func commentStart(line string) int {
	inQuote := false
	for i := 0; i < len(line); i++ {
		switch {
		case line[i] == '"':
			inQuote = !inQuote
		case !inQuote && strings.HasPrefix(line[i:], "//"):
			return i
		}
	}
	return -1
}
