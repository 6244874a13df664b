package cmd

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/lsff-sim/lsff-sim/sim"
)

// ModelSpec is the model specification document: the ordered component
// catalog plus the configuration block the engine consumes.
type ModelSpec struct {
	Components    []string   `yaml:"components"`
	Configuration sim.Config `yaml:"configuration"`
}

// LoadModelSpec parses a model specification with strict field checking so
// typos in configuration keys cause errors instead of silently applying
// defaults.
func LoadModelSpec(path string) (*ModelSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model spec: %w", err)
	}
	var spec ModelSpec
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&spec); err != nil {
		return nil, fmt.Errorf("parse model spec %s: %w", path, err)
	}
	if len(spec.Components) == 0 {
		return nil, fmt.Errorf("model spec %s declares no components", path)
	}
	return &spec, nil
}
