package version

import (
	"regexp"
	"testing"

	"github.com/fatih/color"
)

var semver = regexp.MustCompile(`^\d+\.\d+\.\d+(-[0-9A-Za-z.-]+)?$`)

func TestVersion_DefaultIsSemantic(t *testing.T) {
	if !semver.MatchString(Version) {
		t.Fatalf("Version %q is not a semantic version", Version)
	}
}

func TestVersion_CanBeOverridden(t *testing.T) {
	oldVersion, oldCommit, oldDate := Version, GitCommit, BuildDate
	t.Cleanup(func() { Version, GitCommit, BuildDate = oldVersion, oldCommit, oldDate })

	Version, GitCommit, BuildDate = "1.2.3", "abc1234", "2026-01-02"
	info := Current()
	if got, want := info.String(), "movecheck 1.2.3 (abc1234) built 2026-01-02"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}

	GitCommit, BuildDate = "", ""
	if got, want := Current().String(), "movecheck 1.2.3"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestColored(t *testing.T) {
	oldNoColor, oldVersion := color.NoColor, Version
	t.Cleanup(func() { color.NoColor, Version = oldNoColor, oldVersion })
	color.NoColor = true

	tests := []struct{ in, want string }{
		{"0.1.0-dev", "0.1.0-dev"},
		{"2.0.1", "2.0.1"},
		{"nightly", "nightly"},
	}
	for _, tt := range tests {
		Version = tt.in
		if got := Colored(); got != tt.want {
			t.Fatalf("Colored() with %q = %q, want %q", tt.in, got, tt.want)
		}
	}
}
