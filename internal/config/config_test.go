package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
[verifier]
jobs = 4

[dependencies]
bundles = ["deps/framework.mvb", "/abs/stdlib.mvb"]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Verifier.Jobs != 4 {
		t.Fatalf("jobs = %d, want 4", cfg.Verifier.Jobs)
	}
	def := Default()
	if cfg.Verifier.MaxValueDepth != def.Verifier.MaxValueDepth || !cfg.Verifier.CheckDepthAtLink {
		t.Fatalf("defaults lost: %+v", cfg.Verifier)
	}
	if cfg.Gas.StructLoadCost != def.Gas.StructLoadCost {
		t.Fatalf("struct_load_cost = %d", cfg.Gas.StructLoadCost)
	}
	want := []string{filepath.Join(dir, "deps", "framework.mvb"), "/abs/stdlib.mvb"}
	for i := range want {
		if cfg.Dependencies.Bundles[i] != want[i] {
			t.Fatalf("bundles[%d] = %q, want %q", i, cfg.Dependencies.Bundles[i], want[i])
		}
	}
	if cfg.Path != path {
		t.Fatalf("Path = %q", cfg.Path)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
[verifier]
max_value_depth = 0
check_depth_at_link = false

[gas]
budget = 500
struct_load_cost = 3

[traversal]
max_modules = 8
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Verifier.MaxValueDepth != 0 || cfg.Verifier.CheckDepthAtLink {
		t.Fatalf("verifier = %+v", cfg.Verifier)
	}
	if cfg.Gas.Budget != 500 || cfg.Gas.StructLoadCost != 3 || cfg.Traversal.MaxModules != 8 {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"syntax", "[verifier\n", "failed to parse TOML"},
		{"unknown key", "[verifier]\nmax_depth = 3\n", "unknown keys: verifier.max_depth"},
		{"negative jobs", "[verifier]\njobs = -1\n", "jobs must not be negative"},
		{"negative traversal", "[traversal]\nmax_modules = -2\n", "max_modules must not be negative"},
		{"free loads", "[gas]\nbudget = 10\nstruct_load_cost = 0\n", "struct_load_cost is 0"},
		{"empty bundle", "[dependencies]\nbundles = [\"\"]\n", "bundles[0] is empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), tt.body)
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestFindWalksUp(t *testing.T) {
	root := t.TempDir()
	path := writeConfig(t, root, "")
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	got, ok, err := Find(nested)
	if err != nil || !ok {
		t.Fatalf("Find: %q %v %v", got, ok, err)
	}
	if got != path {
		t.Fatalf("found %q, want %q", got, path)
	}
}

func TestDiscoverWithoutFile(t *testing.T) {
	dir := t.TempDir()
	if _, ok, err := Find(dir); err != nil || ok {
		// A movecheck.toml above the temp dir would make this test meaningless.
		t.Skipf("config found above %s", dir)
	}
	cfg, err := Discover(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Path != "" || cfg.Verifier.MaxValueDepth != Default().Verifier.MaxValueDepth {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}
