package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// Schematic is one robot schematic record as stored in schematics.json.
type Schematic struct {
	ID             string                 `json:"id"`
	Model          string                 `json:"model"`
	Name           string                 `json:"name"`
	Component      string                 `json:"component"`
	Version        string                 `json:"version"`
	Summary        string                 `json:"summary"`
	URL            string                 `json:"url,omitempty"`
	Category       string                 `json:"category,omitempty"`
	Status         string                 `json:"status,omitempty"`
	Tags           []string               `json:"tags,omitempty"`
	Specifications map[string]interface{} `json:"specifications,omitempty"`
	LastVerified   string                 `json:"last_verified,omitempty"`
}

// LoadSchematics reads a JSON array of schematic records.
func LoadSchematics(path string) ([]Schematic, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schematics: %w", err)
	}
	var out []Schematic
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse schematics: %w", err)
	}
	return out, nil
}

// IndexFile loads the records at path and indexes them.
func (s *Store) IndexFile(ctx context.Context, path string) (IndexResult, error) {
	records, err := LoadSchematics(path)
	if err != nil {
		return IndexResult{}, err
	}
	return s.IndexSchematics(ctx, records), nil
}
