// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/northstarmanager/nsm/internal/launch"
)

// LegacyFileName is the YAML config written by older manager versions.
const LegacyFileName = "manager_config.yaml"

// ErrLegacyFormat is returned when a legacy file does not have the expected
// layout.
var ErrLegacyFormat = errors.New("unrecognized legacy config")

type (
	legacyFile struct {
		Manager  *legacyPackage  `yaml:"Manager"`
		Launcher *legacyLauncher `yaml:"Launcher"`
		// Mods and Servers are mappings keyed by name; nodes keep their order.
		Mods    yaml.Node `yaml:"Mods"`
		Servers yaml.Node `yaml:"Servers"`
	}

	legacyPackage struct {
		Repository       string     `yaml:"repository"`
		LastUpdate       string     `yaml:"last_update"`
		File             string     `yaml:"file"`
		InstallDir       string     `yaml:"install_dir"`
		ExcludeFiles     legacyList `yaml:"exclude_files"`
		IgnorePrerelease legacyBool `yaml:"ignore_prerelease"`
		IgnoreUpdates    legacyBool `yaml:"ignore_updates"`
	}

	legacyLauncher struct {
		Filename  string `yaml:"filename"`
		Arguments string `yaml:"arguments"`
	}

	legacyServer struct {
		Dir       string     `yaml:"dir"`
		Enabled   legacyBool `yaml:"enabled"`
		Arguments string     `yaml:"arguments"`
		// Config maps convar names to values.
		Config yaml.Node `yaml:"Config"`
		Mods   yaml.Node `yaml:"Mods"`
	}

	// legacyList accepts a YAML list or a "|"-separated string.
	legacyList []string

	// legacyBool accepts YAML booleans and quoted "true"/"false". The zero
	// value means the key was absent.
	legacyBool struct {
		set   bool
		value bool
	}
)

func (l *legacyList) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		*l = nil
		for _, part := range strings.Split(n.Value, "|") {
			if part = strings.TrimSpace(part); part != "" {
				*l = append(*l, part)
			}
		}
		return nil
	}
	var items []string
	if err := n.Decode(&items); err != nil {
		return err
	}
	*l = items
	return nil
}

func (b *legacyBool) UnmarshalYAML(n *yaml.Node) error {
	v, err := strconv.ParseBool(strings.TrimSpace(n.Value))
	if err != nil {
		return fmt.Errorf("line %d: %q is not a boolean", n.Line, n.Value)
	}
	b.set, b.value = true, v
	return nil
}

func (b legacyBool) or(def bool) bool {
	if b.set {
		return b.value
	}
	return def
}

// ImportLegacy converts a manager_config.yaml document into a Config. Values
// the old format has no place for keep their defaults.
func ImportLegacy(r io.Reader) (*Config, error) {
	var lf legacyFile
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&lf); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrLegacyFormat)
		}
		return nil, fmt.Errorf("%w: %w", ErrLegacyFormat, err)
	}

	cfg := DefaultConfig()

	if lf.Manager != nil {
		merged := lf.Manager.toPackage(cfg.Manager.PackageConfig)
		merged.Name = cfg.Manager.Name
		// Older managers shipped under another name; keep ours.
		merged.Repository = cfg.Manager.Repository
		merged.File = cfg.Manager.File
		cfg.Manager.PackageConfig = merged
	}

	if lf.Launcher != nil {
		if lf.Launcher.Filename != "" {
			cfg.Launcher.Executable = lf.Launcher.Filename
		}
		args, err := launch.SplitArgs(lf.Launcher.Arguments)
		if err != nil {
			return nil, fmt.Errorf("%w: Launcher.arguments: %w", ErrLegacyFormat, err)
		}
		cfg.Launcher.Arguments = args
	}

	northstar, mods, err := decodeLegacyMods(&lf.Mods, DefaultNorthstar())
	if err != nil {
		return nil, err
	}
	if northstar != nil {
		cfg.Northstar = *northstar
	}
	cfg.Mods = mods

	servers, err := decodeLegacyServers(&lf.Servers)
	if err != nil {
		return nil, err
	}
	cfg.Servers = servers

	return cfg, nil
}

func (lp *legacyPackage) toPackage(base PackageConfig) PackageConfig {
	p := base
	if lp.Repository != "" {
		p.Repository = lp.Repository
	}
	p.LastUpdate = legacyTime(lp.LastUpdate)
	if lp.File != "" {
		p.File = lp.File
	}
	if lp.InstallDir != "" {
		p.InstallDir = lp.InstallDir
	}
	if lp.ExcludeFiles != nil {
		p.ExcludeFiles = []string(lp.ExcludeFiles)
	}
	p.IgnorePrerelease = lp.IgnorePrerelease.or(base.IgnorePrerelease)
	p.IgnoreUpdates = lp.IgnoreUpdates.or(base.IgnoreUpdates)
	return p
}

// legacyTime rewrites the old zone-less timestamps as RFC 3339 and drops
// the year-one placeholder meaning "never installed".
func legacyTime(s string) string {
	var p PackageConfig
	p.LastUpdate = strings.TrimSpace(s)
	t := p.LastUpdateTime()
	if t.Year() <= 1 {
		return ""
	}
	p.SetLastUpdate(t)
	return p.LastUpdate
}

// decodeLegacyMods walks a Mods mapping in file order. An entry named
// Northstar is the runtime and is returned separately.
func decodeLegacyMods(n *yaml.Node, northstarBase PackageConfig) (*PackageConfig, []PackageConfig, error) {
	if n.Kind == 0 {
		return nil, nil, nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, nil, fmt.Errorf("%w: line %d: Mods must be a mapping", ErrLegacyFormat, n.Line)
	}

	var (
		northstar *PackageConfig
		mods      []PackageConfig
	)
	for i := 0; i+1 < len(n.Content); i += 2 {
		name := n.Content[i].Value
		var lp legacyPackage
		if err := n.Content[i+1].Decode(&lp); err != nil {
			return nil, nil, fmt.Errorf("%w: Mods.%s: %w", ErrLegacyFormat, name, err)
		}
		if strings.EqualFold(name, "Northstar") {
			p := lp.toPackage(northstarBase)
			p.Name = "Northstar"
			northstar = &p
			continue
		}
		p := lp.toPackage(PackageConfig{IgnorePrerelease: true})
		p.Name = name
		if p.File == DefaultModFile {
			p.File = ""
		}
		// Old entries point at the shared mods folder; here every mod owns
		// its folder and replacing the shared one would drop the others.
		if filepath.Clean(filepath.FromSlash(p.InstallDir)) == filepath.FromSlash(DefaultModsSubpath) {
			p.InstallDir = ""
		}
		mods = append(mods, p)
	}
	return northstar, mods, nil
}

// decodeLegacyServers walks a Servers mapping. Its "enabled" key switches
// all servers at once; every other key is one server.
func decodeLegacyServers(n *yaml.Node) ([]ServerConfig, error) {
	if n.Kind == 0 {
		return nil, nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: line %d: Servers must be a mapping", ErrLegacyFormat, n.Line)
	}

	allEnabled := true
	var servers []ServerConfig
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i].Value, n.Content[i+1]
		if key == "enabled" {
			var b legacyBool
			if err := val.Decode(&b); err != nil {
				return nil, fmt.Errorf("%w: Servers.enabled: %w", ErrLegacyFormat, err)
			}
			allEnabled = b.or(true)
			continue
		}

		var ls legacyServer
		if err := val.Decode(&ls); err != nil {
			return nil, fmt.Errorf("%w: Servers.%s: %w", ErrLegacyFormat, key, err)
		}
		args, err := launch.SplitArgs(ls.Arguments)
		if err != nil {
			return nil, fmt.Errorf("%w: Servers.%s.arguments: %w", ErrLegacyFormat, key, err)
		}
		northstar, mods, err := decodeLegacyMods(&ls.Mods, DefaultNorthstar())
		if err != nil {
			return nil, err
		}

		s := ServerConfig{
			Name:      key,
			Enabled:   ls.Enabled.or(true),
			Dir:       ls.Dir,
			Arguments: args,
			Northstar: northstar,
			Mods:      mods,
		}
		if s.Convars, err = decodeLegacyConvars(&ls.Config); err != nil {
			return nil, fmt.Errorf("%w: Servers.%s.Config: %w", ErrLegacyFormat, key, err)
		}
		servers = append(servers, s)
	}

	if !allEnabled {
		for i := range servers {
			servers[i].Enabled = false
		}
	}
	return servers, nil
}

func decodeLegacyConvars(n *yaml.Node) ([]ConvarConfig, error) {
	if n.Kind == 0 {
		return nil, nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: expected a mapping", n.Line)
	}
	convars := make([]ConvarConfig, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		val := n.Content[i+1]
		if val.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("line %d: value of %s must be a scalar", val.Line, n.Content[i].Value)
		}
		convars = append(convars, ConvarConfig{Name: n.Content[i].Value, Value: val.Value})
	}
	return convars, nil
}
