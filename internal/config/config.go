// Package config loads the YAML configuration for the example CoAP
// server/client binaries: listen address, log level/output, and the
// retransmission-discard toggle.
package config

import (
	"flag"
	"fmt"
	"io/ioutil"
	"os"

	"gopkg.in/yaml.v2"
)

// Config is the top-level shape of the YAML config file.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Logger LoggerConfig `yaml:"logger"`
}

// ServerConfig controls the UDP endpoint the example server binds.
type ServerConfig struct {
	ListenAddr             string `yaml:"listen_addr"`
	DiscardRetransmissions bool   `yaml:"discard_retransmissions"`
}

// LoggerConfig controls corelog.Options.
type LoggerConfig struct {
	Level       string `yaml:"level"`
	File        string `yaml:"file"`
	Development bool   `yaml:"development"`
}

// Default returns the configuration used when no file is given or found.
func Default() *Config {
	return &Config{
		Server: ServerConfig{ListenAddr: ":5683"},
		Logger: LoggerConfig{Level: "info", Development: true},
	}
}

// Load reads and parses the YAML file at path. A missing file is not an
// error; Default is returned instead, matching how the example binaries
// run out of the box with no config file present.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// RegisterFlag adds a -config flag to fs bound to path, the way the pack's
// service binaries let the config file location be overridden at launch.
func RegisterFlag(fs *flag.FlagSet, def string) *string {
	return fs.String("config", def, "path to a YAML config file")
}
