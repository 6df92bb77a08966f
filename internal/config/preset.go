// Parameter presets as TOML files
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"incremental-photo-engine/internal/params"
)

// LoadPreset reads a parameter snapshot. Absent keys keep their
// neutral defaults; unknown keys are rejected.
func LoadPreset(path string) (*params.Params, error) {
	p := params.Defaults()
	md, err := toml.DecodeFile(path, p)
	if err != nil {
		return nil, fmt.Errorf("preset %s: %w", path, err)
	}
	if err := rejectUnknown(md, "preset", path); err != nil {
		return nil, err
	}
	return p, nil
}

// SavePreset writes the full snapshot, defaults included, so a saved
// preset is self-describing rather than a delta against whatever the
// defaults happen to be in some later version.
func SavePreset(path string, p *params.Params) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("preset %s: %w", path, err)
	}
	if err := toml.NewEncoder(f).Encode(p); err != nil {
		f.Close()
		return fmt.Errorf("preset %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("preset %s: %w", path, err)
	}
	return nil
}
