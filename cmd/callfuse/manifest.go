package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type projectManifest struct {
	Path   string
	Root   string
	Config projectConfig
}

type projectConfig struct {
	Package packageConfig `toml:"package"`
	Opt     optConfig     `toml:"opt"`
}

type packageConfig struct {
	Name string `toml:"name"`
}

type optConfig struct {
	// Input is the default path for opt/check/dump when no argument is
	// given, relative to the manifest root.
	Input string `toml:"input"`
	Jobs  int    `toml:"jobs"`
	Cache *bool  `toml:"cache"`
}

// findCallfuseToml walks upward from startDir looking for callfuse.toml.
func findCallfuseToml(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, "callfuse.toml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

func loadProjectManifest(startDir string) (*projectManifest, bool, error) {
	manifestPath, ok, err := findCallfuseToml(startDir)
	if err != nil || !ok {
		return nil, ok, err
	}
	cfg, err := loadProjectConfig(manifestPath)
	if err != nil {
		return nil, true, err
	}
	return &projectManifest{
		Path:   manifestPath,
		Root:   filepath.Dir(manifestPath),
		Config: cfg,
	}, true, nil
}

func loadProjectConfig(path string) (projectConfig, error) {
	var cfg projectConfig
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return projectConfig{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if !meta.IsDefined("package") {
		return projectConfig{}, fmt.Errorf("%s: missing [package]", path)
	}
	if !meta.IsDefined("package", "name") || strings.TrimSpace(cfg.Package.Name) == "" {
		return projectConfig{}, fmt.Errorf("%s: missing [package].name", path)
	}
	if cfg.Opt.Jobs < 0 {
		return projectConfig{}, fmt.Errorf("%s: [opt].jobs must not be negative", path)
	}
	return cfg, nil
}

// resolveInputPath picks the target for a command: the explicit argument
// wins, then the manifest's [opt].input, otherwise an error telling the
// user what to do.
func resolveInputPath(args []string) (string, *projectManifest, error) {
	manifest, found, err := loadProjectManifest(".")
	if err != nil {
		return "", nil, err
	}
	if len(args) > 0 && args[0] != "" {
		return args[0], manifest, nil
	}
	if found && strings.TrimSpace(manifest.Config.Opt.Input) != "" {
		rel := filepath.FromSlash(strings.TrimSpace(manifest.Config.Opt.Input))
		return filepath.Join(manifest.Root, rel), manifest, nil
	}
	return "", nil, errors.New("no input given\nplease specify a .cir file or directory, e.g.:\n  callfuse opt path/to/module.cir\nor set [opt].input in callfuse.toml")
}
