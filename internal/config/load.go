package config

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment overrides, e.g. SLIDEPANEL_WORKSPACE
const EnvPrefix = "SLIDEPANEL"

// scalar keys that can be overridden from the environment
var envKeys = []string{
	"workspace",
	"workers",
	"years.start",
	"years.end",
	"sdr.invest_version",
	"regress.vcov",
}

// Load builds the effective configuration: defaults, overlaid by the config
// file v was pointed at (if any), overlaid by SLIDEPANEL_* variables.
func Load(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := Default()
	// structured lists from the file replace the defaults instead of being
	// merged element by element
	if v.IsSet("zonal") {
		cfg.Zonal = nil
	}
	if v.IsSet("sdr.scenarios") {
		cfg.SDR.Scenarios = nil
	}
	if v.IsSet("biophysical.expansion") {
		cfg.Biophysical.Expansion = nil
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Write marshals cfg as YAML
func Write(w io.Writer, cfg *Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return enc.Close()
}
