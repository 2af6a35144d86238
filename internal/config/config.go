// Package config reads movecheck.toml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// FileName is the name Find looks for.
const FileName = "movecheck.toml"

// Config holds the settings of a verification run.
type Config struct {
	Verifier     Verifier     `toml:"verifier"`
	Gas          Gas          `toml:"gas"`
	Traversal    Traversal    `toml:"traversal"`
	Dependencies Dependencies `toml:"dependencies"`

	// Path is the file the config was read from, empty for defaults.
	Path string `toml:"-"`
}

type Verifier struct {
	// MaxValueDepth of 0 disables the depth checker.
	MaxValueDepth    uint64 `toml:"max_value_depth"`
	CheckDepthAtLink bool   `toml:"check_depth_at_link"`
	// Jobs of 0 means GOMAXPROCS.
	Jobs int `toml:"jobs"`
}

type Gas struct {
	// Budget of 0 means unmetered.
	Budget         uint64 `toml:"budget"`
	StructLoadCost uint64 `toml:"struct_load_cost"`
}

type Traversal struct {
	// MaxModules of 0 means unlimited.
	MaxModules int `toml:"max_modules"`
}

type Dependencies struct {
	// Bundles are relative to the config file.
	Bundles []string `toml:"bundles"`
}

// Default returns the settings used without a config file.
func Default() Config {
	return Config{
		Verifier: Verifier{
			MaxValueDepth:    128,
			CheckDepthAtLink: true,
		},
		Gas: Gas{StructLoadCost: 10},
	}
}

// Find walks from startDir up to the filesystem root looking for FileName.
func Find(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
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

// Load reads path over the defaults. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return Config{}, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if meta.IsDefined("verifier", "jobs") && cfg.Verifier.Jobs < 0 {
		return Config{}, fmt.Errorf("%s: [verifier].jobs must not be negative", path)
	}
	if meta.IsDefined("traversal", "max_modules") && cfg.Traversal.MaxModules < 0 {
		return Config{}, fmt.Errorf("%s: [traversal].max_modules must not be negative", path)
	}
	if meta.IsDefined("gas", "budget") && cfg.Gas.Budget > 0 && cfg.Gas.StructLoadCost == 0 {
		return Config{}, fmt.Errorf("%s: [gas].budget is set but struct_load_cost is 0", path)
	}
	root := filepath.Dir(path)
	for i, b := range cfg.Dependencies.Bundles {
		if strings.TrimSpace(b) == "" {
			return Config{}, fmt.Errorf("%s: [dependencies].bundles[%d] is empty", path, i)
		}
		if !filepath.IsAbs(b) {
			cfg.Dependencies.Bundles[i] = filepath.Join(root, filepath.FromSlash(b))
		}
	}
	cfg.Path = path
	return cfg, nil
}

// Discover loads the config found from startDir, or returns the defaults.
func Discover(startDir string) (Config, error) {
	path, ok, err := Find(startDir)
	if err != nil {
		return Config{}, err
	}
	if !ok {
		return Default(), nil
	}
	return Load(path)
}
