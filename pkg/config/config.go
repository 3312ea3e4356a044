// Package config loads and validates the ectop configuration file. The
// file is YAML; loading rejects unknown fields, then the document is
// checked against a generated JSON Schema and a small set of domain
// rules before any value is used.
package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied to fields the file leaves unset.
const (
	DefaultHost    = "localhost"
	DefaultPort    = 3141
	DefaultRefresh = 2.0
	DefaultTimeout = 5.0
	DefaultEditor  = "vi"
)

// Config is the full configuration document.
type Config struct {
	// Host and Port locate the workflow server.
	Host string `yaml:"host" json:"host" jsonschema:"minLength=1"`
	Port int    `yaml:"port" json:"port" jsonschema:"minimum=1,maximum=65535"`

	// RefreshSeconds is the idle full-sync interval; TimeoutSeconds bounds
	// each individual server call.
	RefreshSeconds float64 `yaml:"refresh_seconds" json:"refresh_seconds" jsonschema:"minimum=0"`
	TimeoutSeconds float64 `yaml:"timeout_seconds" json:"timeout_seconds" jsonschema:"minimum=0"`

	// Editor overrides $EDITOR for script editing.
	Editor string `yaml:"editor,omitempty" json:"editor,omitempty"`

	// LogFile receives diagnostic output; empty disables file logging.
	LogFile string `yaml:"log_file,omitempty" json:"log_file,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Host:           DefaultHost,
		Port:           DefaultPort,
		RefreshSeconds: DefaultRefresh,
		TimeoutSeconds: DefaultTimeout,
	}
}

// RefreshInterval converts the configured refresh period to a duration.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshSeconds * float64(time.Second))
}

// Timeout converts the configured call timeout to a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds * float64(time.Second))
}

// EditorCommand resolves the script editor: config value, then $EDITOR,
// then vi.
func (c *Config) EditorCommand() string {
	if c.Editor != "" {
		return c.Editor
	}
	if env := os.Getenv("EDITOR"); env != "" {
		return env
	}
	return DefaultEditor
}

// Load parses a configuration document with strict unknown-field
// rejection, filling defaults for omitted fields.
func Load(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if err == io.EOF {
			return Default(), nil
		}
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// LoadFile reads, parses, and validates a configuration file. A missing
// file yields the defaults without error.
func LoadFile(path string) (*Config, []*ValidationError) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, []*ValidationError{{
			Phase:    "structural",
			Message:  err.Error(),
			Severity: "error",
		}}
	}
	defer f.Close()

	cfg, err := Load(f)
	if err != nil {
		return nil, []*ValidationError{{
			Phase:    "structural",
			Message:  err.Error(),
			Severity: "error",
		}}
	}
	if errs := Validate(cfg); len(errs) > 0 {
		return cfg, errs
	}
	return cfg, nil
}
