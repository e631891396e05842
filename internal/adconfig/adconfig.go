// Package adconfig loads wasmgrad.toml, the optional project-level
// configuration file for the transform and the finite-difference test
// checker.
//
// Grounded on the teacher's own "optional manifest, sane defaults if
// absent" pattern (cmd/surge/project_manifest.go's loadProjectConfig,
// internal/project/modules.go), including its use of
// github.com/BurntSushi/toml for decoding.
package adconfig

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// TransformConfig controls addriver.Driver's input validation and name
// minting.
type TransformConfig struct {
	RequireMultivalue bool   `toml:"require_multivalue"`
	RequireRefTypes   bool   `toml:"require_reftypes"`
	RequireGC         bool   `toml:"require_gc"`
	NameSuffixFwd     string `toml:"name_suffix_fwd"`
	NameSuffixBwd     string `toml:"name_suffix_bwd"`
}

// TestConfig controls the finite-difference gradient checker in
// internal/adtest.
type TestConfig struct {
	Tolerance float64 `toml:"tolerance"`
	FDEpsilon float64 `toml:"fd_epsilon"`
}

// Config is the decoded contents of wasmgrad.toml.
type Config struct {
	Transform TransformConfig `toml:"transform"`
	Test      TestConfig      `toml:"test"`
}

// DefaultConfig returns the configuration used when no wasmgrad.toml is
// present, or when a present file omits a section entirely.
func DefaultConfig() Config {
	return Config{
		Transform: TransformConfig{
			RequireMultivalue: true,
			RequireRefTypes:   true,
			RequireGC:         true,
			NameSuffixFwd:     "_fwd",
			NameSuffixBwd:     "_bwd",
		},
		Test: TestConfig{
			Tolerance: 1e-6,
			FDEpsilon: 1e-4,
		},
	}
}

// Load reads and decodes path. A missing file is not an error: Load
// returns DefaultConfig(), exactly as the teacher's project manifest
// loader tolerates an absent surge.toml.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultConfig(), nil
		}
		return Config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if !meta.IsDefined("transform") {
		cfg.Transform = DefaultConfig().Transform
	}
	if !meta.IsDefined("test") {
		cfg.Test = DefaultConfig().Test
	}
	return cfg, nil
}
