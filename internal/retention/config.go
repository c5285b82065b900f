package retention

import (
	"encoding/json"
	"os"
)

// Policy is one environment's retention rule (spec §4.E). RetentionDays of
// 0 means unlimited.
type Policy struct {
	Environment   string `json:"environment"`
	RetentionDays int    `json:"retention_days"`
	Enabled       bool   `json:"enabled"`
}

// Config is the schema-versioned retention document persisted at
// retention-config.json.
type Config struct {
	SchemaVersion       int      `json:"schema_version"`
	GlobalRetentionDays *int     `json:"global_retention_days,omitempty"`
	Policies            []Policy `json:"policies"`
}

// DefaultConfig matches spec §4.E's defaults: production 30 days,
// development 7 days, 30 days for anything else.
func DefaultConfig() *Config {
	return &Config{
		SchemaVersion: 1,
		Policies: []Policy{
			{Environment: "production", RetentionDays: 30, Enabled: true},
			{Environment: "development", RetentionDays: 7, Enabled: true},
		},
	}
}

// LoadConfig reads path, falling back to DefaultConfig for a missing file
// or one that fails to parse (spec §4.E: "Loading a missing or
// unparseable config yields the defaults").
func LoadConfig(path string) *Config {
	data, err := os.ReadFile(path) //nolint:gosec // path is an operator-supplied config location
	if err != nil {
		return DefaultConfig()
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig()
	}
	return &cfg
}

// Save writes c to path as indented JSON via a temp-file-then-rename so a
// crash mid-write never leaves a truncated config on disk.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// RetentionDays returns the effective retention window for env: the
// global override if set, else the environment-specific policy if
// enabled, else the "default" fallback of 30 days.
func (c *Config) RetentionDays(env string) int {
	if c.GlobalRetentionDays != nil {
		return *c.GlobalRetentionDays
	}
	for _, p := range c.Policies {
		if p.Environment == env && p.Enabled {
			return p.RetentionDays
		}
	}
	return 30
}
