package scenario

import (
	"encoding/json"
	"fmt"
	"os"
)

// Save writes td as indented JSON.
func Save(td *TemplateData, path string) error {
	data, err := json.MarshalIndent(td, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal template data: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write template data to %s: %w", path, err)
	}
	return nil
}

// Load reads TemplateData saved by Save (or hand-written in the same shape).
// The archetype correction is re-applied so stale files pick up rule changes.
func Load(path string) (*TemplateData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template data from %s: %w", path, err)
	}
	var td TemplateData
	if err := json.Unmarshal(data, &td); err != nil {
		return nil, fmt.Errorf("parse template data from %s: %w", path, err)
	}
	if td.GeneralInfo.Domain == "" && td.GeneralInfo.Title == "" {
		return nil, fmt.Errorf("template data %s has no general_info", path)
	}
	if td.PersonaTypes == nil {
		td.PersonaTypes = []PersonaType{}
	}
	Correct(&td)
	return &td, nil
}
