package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if necessary
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Primary.Timeout == 0 {
		cfg.Primary.Timeout = Duration(10 * time.Second)
	}
	if cfg.Snapshot.Size == 0 {
		cfg.Snapshot.Size = 128
	}

	for i := range cfg.Resources {
		r := &cfg.Resources[i]
		if r.Name == "" {
			return nil, fmt.Errorf("resources[%d]: name is required", i)
		}
		if r.Group == "" {
			r.Group = r.Name
		}
		if r.Interval == 0 {
			r.Interval = Duration(10 * time.Second)
		}
	}

	return &cfg, nil
}
