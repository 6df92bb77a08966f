// Application configuration over TOML
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config carries process-level settings. Load starts from Default and
// overlays the file, so absent keys keep their defaults.
type Config struct {
	CacheLimitMB   int64 `toml:"cache_limit_mb"`
	PreviewEdge    int   `toml:"preview_edge"`
	DebounceMS     int   `toml:"debounce_ms"`
	JPEGQuality    int   `toml:"jpeg_quality"`
	PNGCompression int   `toml:"png_compression"`
	MemCheckSec    int   `toml:"mem_check_sec"`
	MemPressurePct int   `toml:"mem_pressure_pct"`
}

func Default() Config {
	return Config{
		CacheLimitMB:   512,
		PreviewEdge:    1600,
		DebounceMS:     200,
		JPEGQuality:    92,
		PNGCompression: 3,
		MemCheckSec:    5,
		MemPressurePct: 85,
	}
}

// Load reads path over the defaults. Unknown keys are rejected rather
// than silently ignored: a typoed key would otherwise read as "use the
// default" with no signal to the user.
func Load(path string) (Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	if err := rejectUnknown(md, "config", path); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.CacheLimitMB <= 0 {
		return errors.New("cache_limit_mb must be positive")
	}
	if c.PreviewEdge < 0 {
		return errors.New("preview_edge cannot be negative")
	}
	if c.DebounceMS < 0 {
		return errors.New("debounce_ms cannot be negative")
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return errors.New("jpeg_quality must be in 1..100")
	}
	if c.PNGCompression < 0 || c.PNGCompression > 9 {
		return errors.New("png_compression must be in 0..9")
	}
	if c.MemCheckSec <= 0 {
		return errors.New("mem_check_sec must be positive")
	}
	if c.MemPressurePct < 1 || c.MemPressurePct > 100 {
		return errors.New("mem_pressure_pct must be in 1..100")
	}
	return nil
}

func (c Config) CacheLimitBytes() int64 {
	return c.CacheLimitMB << 20
}

func (c Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

func (c Config) MemInterval() time.Duration {
	return time.Duration(c.MemCheckSec) * time.Second
}

func rejectUnknown(md toml.MetaData, what, path string) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}
	keys := make([]string, len(undecoded))
	for i, k := range undecoded {
		keys[i] = k.String()
	}
	return fmt.Errorf("%s %s: unknown keys: %s", what, path, strings.Join(keys, ", "))
}
