// Package backlog loads experiment configuration backlogs from JSON and
// YAML documents. A backlog document is a top-level sequence of mapping
// objects, each one an experiment configuration.
package backlog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/machinalis/featureforge"
)

// LoadJSON reads a JSON array of configuration objects. Numbers are kept
// as json.Number so the integer/float distinction survives into the
// canonical encoding; 1 and 1.0 stay different experiments.
func LoadJSON(r io.Reader) ([]featureforge.Config, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var raw []featureforge.Config
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("backlog: decode json: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("backlog: trailing data after configuration array")
	}
	return raw, nil
}

// LoadYAML reads a YAML sequence of configuration mappings.
func LoadYAML(r io.Reader) ([]featureforge.Config, error) {
	dec := yaml.NewDecoder(r)

	var raw []map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("backlog: decode yaml: %w", err)
	}

	backlog := make([]featureforge.Config, len(raw))
	for i, m := range raw {
		backlog[i] = featureforge.Config(m)
	}
	return backlog, nil
}

// LoadFile loads a backlog from path, selecting the format by extension.
// Supported extensions are .json, .yaml and .yml.
func LoadFile(path string) ([]featureforge.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("backlog: open %s: %w", path, err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return LoadJSON(f)
	case ".yaml", ".yml":
		return LoadYAML(f)
	default:
		return nil, fmt.Errorf("backlog: unsupported file extension %q", filepath.Ext(path))
	}
}
