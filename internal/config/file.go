package config

import (
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v2"
)

// fileOverlay is the optional YAML pipeline configuration. Fields left empty
// keep the value already loaded from the environment.
type fileOverlay struct {
	RawDir               string  `yaml:"raw_dir"`
	ReportDir            string  `yaml:"report_dir"`
	ExportDir            string  `yaml:"export_dir"`
	ModelDir             string  `yaml:"model_dir"`
	DefaultContamination float64 `yaml:"default_contamination"`
	AnomalySeed          int64   `yaml:"anomaly_seed"`
	MinAnomalySamples    int     `yaml:"min_anomaly_samples"`
}

// applyFile overlays pipeline settings from a YAML file onto the config.
// The file wins over environment variables for the fields it sets.
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from operator config
	if err != nil {
		return fmt.Errorf("read pipeline config %s: %w", path, err)
	}

	var o fileOverlay
	if err := yaml.UnmarshalStrict(data, &o); err != nil {
		return fmt.Errorf("parse pipeline config %s: %w", path, err)
	}

	if o.RawDir != "" {
		c.RawDir = o.RawDir
	}
	if o.ReportDir != "" {
		c.ReportDir = o.ReportDir
	}
	if o.ExportDir != "" {
		c.ExportDir = o.ExportDir
	}
	if o.ModelDir != "" {
		c.ModelDir = o.ModelDir
	}
	if o.DefaultContamination != 0 {
		c.DefaultContamination = o.DefaultContamination
	}
	if o.AnomalySeed != 0 {
		c.AnomalySeed = o.AnomalySeed
	}
	if o.MinAnomalySamples != 0 {
		c.MinAnomalySamples = o.MinAnomalySamples
	}
	return nil
}
