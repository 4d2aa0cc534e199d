// Package config resolves a RunConfig from a layered stack of defaults,
// an optional config file, environment variables and explicit flags, in
// that increasing order of precedence — flag beats env beats file beats
// built-in default.
package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Quality is the default PCM conversion quality a run falls back to when
// a sink spec does not name one explicitly.
type Quality string

const (
	QualityLow    Quality = "low"
	QualityNormal Quality = "normal"
	QualityHigh   Quality = "high"
)

// RunConfig is the resolved, CLI/config-layered input to one pipeline run.
type RunConfig struct {
	OutputDir         string  `mapstructure:"output_dir"`
	DefaultQuality    Quality `mapstructure:"default_quality"`
	LogLevel          string  `mapstructure:"log_level"`
	MaxBatchesInFlight int    `mapstructure:"max_batches_in_flight"`
}

// Load builds a viper instance layered as: built-in defaults, then an
// optional config file at configPath (if non-empty), then environment
// variables prefixed DSDPIPE_. Flags are applied afterward by the caller
// with v.Set before Resolve, so they take precedence over everything here.
func Load(configPath string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DSDPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("output_dir", ".")
	v.SetDefault("default_quality", string(QualityNormal))
	v.SetDefault("log_level", "info")
	v.SetDefault("max_batches_in_flight", 2)
}

// Resolve unmarshals v into a RunConfig. Call after binding any pflag
// overrides into v so they are reflected in the result.
func Resolve(v *viper.Viper) (RunConfig, error) {
	var cfg RunConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return RunConfig{}, err
	}
	return cfg, nil
}
