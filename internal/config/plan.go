// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"slices"

	"github.com/northstarmanager/nsm/internal/servercfg"
	"github.com/northstarmanager/nsm/internal/source"
	"github.com/northstarmanager/nsm/internal/updater"
)

type (
	// PlanOptions tune BuildPlan.
	PlanOptions struct {
		// SkipSelf leaves the manager package out, e.g. when nsm does not
		// run from the configured location.
		SkipSelf bool
	}

	// Binding ties an update plan to the configuration it was built from.
	// Commit copies the state a pass changed back into the configuration.
	Binding struct {
		Plan  updater.Plan
		links []link
	}

	link struct {
		desc *updater.Descriptor
		pkg  *PackageConfig
	}
)

// BuildPlan returns the packages of cfg in pass order. Relative paths are
// resolved against gameDir. The returned binding points into cfg, so cfg
// must not be copied or have its slices grown until Commit has run.
func BuildPlan(cfg *Config, gameDir string, opts PlanOptions) *Binding {
	b := &Binding{}

	if !opts.SkipSelf {
		d := b.bind(&cfg.Manager.PackageConfig, gameDir, updater.GroupManager, "")
		d.Self = true
		b.Plan.Packages = append(b.Plan.Packages, d)
	}

	ns := b.bind(&cfg.Northstar, gameDir, updater.GroupClient, "")
	ns.EcosystemRoot = true
	b.Plan.Packages = append(b.Plan.Packages, ns)

	for i := range cfg.Mods {
		b.Plan.Packages = append(b.Plan.Packages, b.bindMod(&cfg.Mods[i], gameDir, cfg.Manager.ModsSubpath, updater.GroupClient, ""))
	}

	for i := range cfg.Servers {
		s := &cfg.Servers[i]
		if !s.Enabled {
			slog.Debug("server disabled, skipping", "server", s.Name)
			continue
		}
		b.Plan.Servers = append(b.Plan.Servers, b.serverPlan(s, gameDir, cfg.Manager.ModsSubpath))
	}

	return b
}

// Commit writes LastUpdate and a probed source kind of every bound package
// back into the configuration.
func (b *Binding) Commit() {
	for _, l := range b.links {
		if !l.desc.LastUpdate.IsZero() && !l.desc.LastUpdate.Equal(l.pkg.LastUpdateTime()) {
			l.pkg.SetLastUpdate(l.desc.LastUpdate)
		}
		if l.pkg.Source == "" {
			l.pkg.Source = sourceFromKind(l.desc.Kind)
		}
	}
}

func (b *Binding) serverPlan(s *ServerConfig, gameDir, modsSubpath string) updater.ServerPlan {
	dir := ServerDir(s, gameDir)
	sp := updater.ServerPlan{Name: s.Name}

	if s.Northstar != nil {
		ns := b.bind(s.Northstar, dir, updater.GroupServer, s.Name)
		ns.EcosystemRoot = true
		sp.Packages = append(sp.Packages, ns)
	}
	for i := range s.Mods {
		sp.Packages = append(sp.Packages, b.bindMod(&s.Mods[i], dir, modsSubpath, updater.GroupServer, s.Name))
	}

	if len(s.Convars) > 0 {
		cfgPath := s.ConfigFile
		if cfgPath == "" {
			cfgPath = servercfg.DefaultPath
		}
		cfgPath = filepath.Join(dir, filepath.FromSlash(cfgPath))
		convars := make([]servercfg.Convar, 0, len(s.Convars))
		for _, cv := range s.Convars {
			convars = append(convars, servercfg.Convar{Name: cv.Name, Value: cv.Value})
		}
		sp.Configure = func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			slog.Info("writing server config", "server", s.Name, "path", cfgPath)
			return servercfg.Rewrite(cfgPath, convars)
		}
	}
	return sp
}

// ServerDir returns the absolute installation directory of s.
func ServerDir(s *ServerConfig, gameDir string) string {
	return resolve(gameDir, s.Dir)
}

// ManagerPath returns where the configured nsm executable is installed.
func ManagerPath(cfg *Config, gameDir string) string {
	return filepath.Join(resolve(gameDir, cfg.Manager.InstallDir), filepath.FromSlash(cfg.Manager.File))
}

// bindMod applies the mod defaults: mod.json as anchor and a folder named
// after the mod under the mods directory.
func (b *Binding) bindMod(p *PackageConfig, baseDir, modsSubpath string, group updater.Group, server string) *updater.Descriptor {
	d := b.bind(p, baseDir, group, server)
	if p.File == "" {
		d.AnchorFile = DefaultModFile
	}
	if p.InstallDir == "" {
		d.InstallDir = filepath.Join(baseDir, filepath.FromSlash(modsSubpath), p.DisplayName())
	}
	return d
}

func (b *Binding) bind(p *PackageConfig, baseDir string, group updater.Group, server string) *updater.Descriptor {
	d := &updater.Descriptor{
		Name:             p.DisplayName(),
		SourceID:         p.Repository,
		Kind:             kindFromSource(p.Source),
		AnchorFile:       p.File,
		InstallDir:       resolve(baseDir, p.InstallDir),
		ExcludeFiles:     slices.Clone(p.ExcludeFiles),
		IgnorePrerelease: p.IgnorePrerelease,
		IgnoreUpdates:    p.IgnoreUpdates,
		LastUpdate:       p.LastUpdateTime(),
		Group:            group,
		Server:           server,
	}
	b.links = append(b.links, link{desc: d, pkg: p})
	return d
}

func resolve(baseDir, p string) string {
	if p == "" {
		return baseDir
	}
	p = filepath.FromSlash(p)
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(baseDir, p)
}

func kindFromSource(s Source) source.Kind {
	switch s {
	case SourceGitHub:
		return source.KindGitHub
	case SourceThunderstore:
		return source.KindThunderstore
	}
	return 0
}

func sourceFromKind(k source.Kind) Source {
	switch k {
	case source.KindGitHub:
		return SourceGitHub
	case source.KindThunderstore:
		return SourceThunderstore
	}
	return ""
}
