package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Keys understood by Load and FromViper
const (
	KeyThreshold                  = "threshold"
	KeyShowGroupIndividualEntries = "show_group_individual_entries"
	KeyFirstGroupEntryAsLogEntry  = "first_group_entry_as_log_entry"
	KeyStrategy                   = "strategy"
)

// SetDefaults registers the default values on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyThreshold, "0s")
	v.SetDefault(KeyShowGroupIndividualEntries, false)
	v.SetDefault(KeyFirstGroupEntryAsLogEntry, true)
	v.SetDefault(KeyStrategy, string(StrategyOnDemand))
}

// Load reads a configuration file (any format viper supports) and PERFEE_*
// environment variables. An empty path reads the environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix("PERFEE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	return FromViper(v)
}

// FromViper builds a Config from the keys set on v
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := New()

	threshold, err := parseThreshold(v.GetString(KeyThreshold))
	if err != nil {
		return nil, err
	}
	if err := cfg.SetThreshold(threshold); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", KeyThreshold, err)
	}

	if err := cfg.SetStrategy(StrategyKind(v.GetString(KeyStrategy))); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", KeyStrategy, err)
	}

	cfg.SetShowGroupIndividualEntries(v.GetBool(KeyShowGroupIndividualEntries))
	cfg.SetFirstGroupEntryAsLogEntry(v.GetBool(KeyFirstGroupEntryAsLogEntry))

	return cfg, nil
}

func parseThreshold(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", KeyThreshold, s, err)
	}
	return d, nil
}
