package main

import (
	"os"

	"github.com/goccy/go-yaml"
)

// fileConfig is the optional YAML config file format; any field left zero
// leaves the corresponding CLI flag/env var in charge.
type fileConfig struct {
	Appdir   string `yaml:"appdir"`
	AppName  string `yaml:"app_name"`
	Platform string `yaml:"platform"`
	IndexURL string `yaml:"index_url"`
}

func loadConfig(path string) (fileConfig, error) {
	var cfg fileConfig
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyDefaults fills in any CLI field left empty from the file config, so
// the config file and flags/env vars can be mixed freely.
func (c fileConfig) applyDefaults(cli *CLI) {
	if cli.Appdir == "" {
		cli.Appdir = c.Appdir
	}
	if cli.AppName == "" {
		cli.AppName = c.AppName
	}
	if cli.Platform == "" {
		cli.Platform = c.Platform
	}
	if cli.IndexURL == "" {
		cli.IndexURL = c.IndexURL
	}
}
