// Package cliconfig loads the optional configuration file shared by the
// shmstatus demo binaries. The file is HuJSON (JSON with comments and
// trailing commas) so operators can annotate deployments.
package cliconfig

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tailscale/hujson"
)

// Config holds the settings every demo binary understands.
type Config struct {
	Segment string `json:"segment,omitempty"` // segment name override
	Backend string `json:"backend,omitempty"` // "rwlock" (default) or "mutex"
	Perm    uint32 `json:"perm,omitempty"`    // octal permission bits, e.g. 438 for 0666
}

// Default returns the default configuration.
func Default() Config {
	return Config{Backend: "rwlock"}
}

// Load reads path and merges it over the defaults. A missing file is fine
// when the path was not explicitly requested.
func Load(path string, explicit bool) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	std, err := hujson.Standardize(data)
	if err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	if err := json.Unmarshal(std, &cfg); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	if cfg.Backend == "" {
		cfg.Backend = "rwlock"
	}
	if cfg.Backend != "rwlock" && cfg.Backend != "mutex" {
		return cfg, fmt.Errorf("invalid config %s: unknown backend %q", path, cfg.Backend)
	}
	return cfg, nil
}
