package config

import (
	"time"

	"github.com/vietddude/feedsync/internal/infra/realtime"
)

// Duration is a time.Duration that can be unmarshaled from YAML
// strings like "30s" as well as raw nanosecond integers.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := unmarshal(&n); err != nil {
		return err
	}
	*d = Duration(n)
	return nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig     `yaml:"server"`
	Logging   LoggingConfig    `yaml:"logging"`
	Primary   PrimaryConfig    `yaml:"primary"`
	Database  DatabaseConfig   `yaml:"database"`
	Redis     realtime.Config  `yaml:"redis"`
	Snapshot  SnapshotConfig   `yaml:"snapshot"`
	Resources []ResourceConfig `yaml:"resources"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// PrimaryConfig holds settings for the REST primary backend.
type PrimaryConfig struct {
	BaseURL string   `yaml:"base_url"`
	APIKey  string   `yaml:"api_key"`
	Timeout Duration `yaml:"timeout"`
}

// DatabaseConfig holds settings for the direct-SQL secondary backend.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// SnapshotConfig bounds the last-good snapshot store.
type SnapshotConfig struct {
	Size int `yaml:"size"`
}

// ResourceConfig describes one refreshed resource.
type ResourceConfig struct {
	Name     string        `yaml:"name"`
	Group    string        `yaml:"group"`    // circuit group; defaults to name
	Interval Duration      `yaml:"interval"` // polling interval
	Path     string        `yaml:"path"`     // REST path on the primary
	Query    string        `yaml:"query"`    // SELECT for the secondary
	Channel  ChannelConfig `yaml:"channel"`
}

// ChannelConfig describes the optional change channel for a resource.
type ChannelConfig struct {
	// Transport selects the push feed: "", "websocket", "postgres" or "redis".
	Transport string `yaml:"transport"`
	// Name is the topic / NOTIFY channel; defaults per transport.
	Name string `yaml:"name"`
	// URL is the websocket endpoint; required for the websocket transport.
	URL string `yaml:"url"`
}
