// Package config loads the dataset configuration (scratch paths,
// per-instance path templates, environment overlay) and per-variant
// settings (ablation gates/budgets plus the three static prompt files),
// grounded on the teacher's layered viper config and simple prompt-file
// loader respectively.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Paths holds the path templates the orchestrator fills in with
// {scratch_base}/{pid}/{bid} placeholders for one bug instance.
type Paths struct {
	ScratchBase        string `mapstructure:"scratch_base"`
	WorkdirTemplate     string `mapstructure:"workdir_template"`
	IndexDirTemplate   string `mapstructure:"index_dir_template"`
	LogDirTemplate     string `mapstructure:"log_dir_template"`
	MetaDirTemplate    string `mapstructure:"meta_dir_template"`
}

// Environment holds ambient environment discipline settings (spec §4.1
// step 5's Java toolchain guard).
type Environment struct {
	JavaHome string `mapstructure:"java_home"`
}

// DatasetConfig is the top-level dataset configuration document.
type DatasetConfig struct {
	Version     int         `mapstructure:"version"`
	Paths       Paths       `mapstructure:"paths"`
	Environment Environment `mapstructure:"environment"`
}

// LoadDataset reads a dataset config file (YAML or JSON, viper
// auto-detects by extension) with an APR_ environment-variable overlay.
func LoadDataset(path string) (*DatasetConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("APR")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read dataset config %s: %w", path, err)
	}

	var cfg DatasetConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal dataset config: %w", err)
	}
	return &cfg, nil
}

// Resolve expands {scratch_base}/{pid}/{bid} placeholders in a path
// template.
func (p Paths) Resolve(template, pid string, bid int) string {
	r := strings.NewReplacer(
		"{scratch_base}", p.ScratchBase,
		"{pid}", pid,
		"{bid}", fmt.Sprintf("%d", bid),
	)
	return r.Replace(template)
}
