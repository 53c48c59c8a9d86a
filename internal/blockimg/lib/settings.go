package lib

import (
	"fmt"
	"os"

	"github.com/gingerrexayers/blockimg-go/internal/blockimg/rangeset"
	"github.com/gingerrexayers/blockimg-go/internal/blockimg/types"
	"gopkg.in/yaml.v3"
)

// Defaults applied to zero-valued config fields.
const (
	DefaultCheckpointBackend = "file"
	DefaultStashCacheEntries = 8
	DefaultLogLevel          = "info"
)

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() types.Config {
	cfg := types.Config{}
	applyDefaults(&cfg)
	return cfg
}

// LoadConfig reads a YAML config file. An empty path yields DefaultConfig.
func LoadConfig(path string) (types.Config, error) {
	cfg := types.Config{}
	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return types.Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(content, &cfg); err != nil {
			return types.Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return types.Config{}, err
	}
	return cfg, nil
}

func applyDefaults(cfg *types.Config) {
	if cfg.BlockSize == 0 {
		cfg.BlockSize = rangeset.DefaultBlockSize
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = WorkDirName
	}
	if cfg.CheckpointBackend == "" {
		cfg.CheckpointBackend = DefaultCheckpointBackend
	}
	if cfg.StashCacheEntries == 0 {
		cfg.StashCacheEntries = DefaultStashCacheEntries
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
}

func validateConfig(cfg types.Config) error {
	if cfg.BlockSize&(cfg.BlockSize-1) != 0 || cfg.BlockSize < 512 {
		return fmt.Errorf("invalid block_size %d: must be a power of two >= 512", cfg.BlockSize)
	}
	switch cfg.CheckpointBackend {
	case "file", "bolt":
	default:
		return fmt.Errorf("invalid checkpoint_backend %q: want \"file\" or \"bolt\"", cfg.CheckpointBackend)
	}
	if cfg.WriteRateLimit < 0 {
		return fmt.Errorf("invalid write_rate_limit %d", cfg.WriteRateLimit)
	}
	if cfg.StashCacheEntries < 0 {
		return fmt.Errorf("invalid stash_cache_entries %d", cfg.StashCacheEntries)
	}
	return nil
}
