package plugins

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Manifest is the required declaration a plugin bundle ships at its root,
// as manifest.yaml or manifest.json (yaml checked first).
type Manifest struct {
	ID             string                 `yaml:"id" json:"id"`
	Name           string                 `yaml:"name" json:"name"`
	Version        string                 `yaml:"version" json:"version"`
	Author         string                 `yaml:"author" json:"author"`
	Type           string                 `yaml:"type" json:"type"`
	Permissions    []string               `yaml:"permissions" json:"permissions"`
	HealthPath     string                 `yaml:"health_path" json:"health_path"`
	Config         map[string]interface{} `yaml:"config" json:"config"`
	AllowedOrigins []string               `yaml:"allowed_origins" json:"allowed_origins"`
}

// LoadManifest reads manifest.yaml or manifest.json from bundleDir and
// validates the required fields.
func LoadManifest(bundleDir string) (*Manifest, error) {
	for _, name := range []string{"manifest.yaml", "manifest.yml", "manifest.json"} {
		path := filepath.Join(bundleDir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}

		var m Manifest
		if filepath.Ext(name) == ".json" {
			err = json.Unmarshal(data, &m)
		} else {
			err = yaml.Unmarshal(data, &m)
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		if err := m.validate(); err != nil {
			return nil, err
		}
		return &m, nil
	}
	return nil, fmt.Errorf("no manifest.yaml or manifest.json found in bundle")
}

func (m *Manifest) validate() error {
	missing := []string{}
	if m.ID == "" {
		missing = append(missing, "id")
	}
	if m.Name == "" {
		missing = append(missing, "name")
	}
	if m.Version == "" {
		missing = append(missing, "version")
	}
	if m.Author == "" {
		missing = append(missing, "author")
	}
	if m.Type == "" {
		missing = append(missing, "type")
	}
	if len(missing) > 0 {
		return fmt.Errorf("manifest missing required fields: %v", missing)
	}
	return nil
}
