package adconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != DefaultConfig() {
		t.Errorf("Load of a missing file = %+v, want defaults %+v", cfg, DefaultConfig())
	}
}

func TestLoadFullFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wasmgrad.toml")
	writeFile(t, path, `
[transform]
require_multivalue = false
require_reftypes = true
require_gc = true
name_suffix_fwd = "_f"
name_suffix_bwd = "_b"

[test]
tolerance = 1e-3
fd_epsilon = 1e-2
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Transform.RequireMultivalue {
		t.Errorf("expected require_multivalue to be overridden to false")
	}
	if cfg.Transform.NameSuffixFwd != "_f" || cfg.Transform.NameSuffixBwd != "_b" {
		t.Errorf("name suffixes not decoded: %+v", cfg.Transform)
	}
	if cfg.Test.Tolerance != 1e-3 || cfg.Test.FDEpsilon != 1e-2 {
		t.Errorf("test config not decoded: %+v", cfg.Test)
	}
}

func TestLoadPartialFileFallsBackPerSection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wasmgrad.toml")
	writeFile(t, path, `
[transform]
name_suffix_fwd = "_forward"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Transform.NameSuffixFwd != "_forward" {
		t.Errorf("expected the present field to be decoded, got %q", cfg.Transform.NameSuffixFwd)
	}
	if cfg.Test != DefaultConfig().Test {
		t.Errorf("expected the omitted [test] section to fall back to defaults, got %+v", cfg.Test)
	}
}

func TestLoadInvalidTOMLReturnsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wasmgrad.toml")
	writeFile(t, path, "not = [valid")

	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error for malformed TOML")
	}
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing test fixture %s: %v", path, err)
	}
}
