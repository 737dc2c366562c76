package skiff

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/chazu/skiff/pkg/vm"
)

// Config is the on-disk engine configuration (skiff.toml).
type Config struct {
	Limits LimitsConfig `toml:"limits"`
	Cache  CacheConfig  `toml:"cache"`
}

// LimitsConfig mirrors vm.Limits; zero fields keep the defaults.
type LimitsConfig struct {
	MaxCallDepth int     `toml:"max_call_depth"`
	MaxStack     int     `toml:"max_stack"`
	MaxMetaDepth int     `toml:"max_meta_depth"`
	GCGrowth     float64 `toml:"gc_growth"`
}

// CacheConfig controls the compiled-module cache.
type CacheConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	return Config{}
}

// LoadConfig reads a TOML configuration file. A missing file is not an
// error; defaults apply.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("loading %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return cfg, fmt.Errorf("loading %s: unknown key %s", path, undecoded[0])
	}
	return cfg, nil
}

// VMLimits converts the configured limits to vm.Limits.
func (c Config) VMLimits() vm.Limits {
	return vm.Limits{
		MaxCallDepth: c.Limits.MaxCallDepth,
		MaxStack:     c.Limits.MaxStack,
		MaxMetaDepth: c.Limits.MaxMetaDepth,
		GCGrowth:     c.Limits.GCGrowth,
	}
}
