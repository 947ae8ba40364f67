package persona

import (
	"encoding/json"
	"fmt"
	"os"
)

// Save writes p as indented JSON.
func Save(p *Instance, path string) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal persona: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write persona to %s: %w", path, err)
	}
	return nil
}

// Load reads a persona written by Save.
func Load(path string) (*Instance, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona from %s: %w", path, err)
	}
	var p Instance
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse persona from %s: %w", path, err)
	}
	if p.Name == "" && p.Role == "" {
		return nil, fmt.Errorf("persona %s has no name or role", path)
	}
	return &p, nil
}
