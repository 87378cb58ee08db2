// Package config loads the stickermatch YAML configuration: system-wide
// settings plus one entry per dealership. Secrets (portal passwords,
// Slack token, API password hash) come from environment variables so the
// config file can be committed.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// System holds all process-wide configuration.
type System struct {
	DBPath       string `yaml:"db_path"`
	CatalogPath  string `yaml:"catalog_path"`
	OverridePath string `yaml:"override_path"`
	ReportDir    string `yaml:"report_dir"`

	// Schedule is a cron expression; empty means run once and exit.
	Schedule string `yaml:"schedule"`

	// Algorithm selects the similarity scorer: levenshtein | token_sort.
	Algorithm string `yaml:"algorithm"`

	// Threshold overrides the catalog confidence threshold when > 0.
	Threshold float64 `yaml:"threshold"`

	Browser     Browser      `yaml:"browser"`
	Session     Session      `yaml:"session"`
	Portal      Portal       `yaml:"portal"`
	Slack       Slack        `yaml:"slack"`
	API         API          `yaml:"api"`
	MCP         MCP          `yaml:"mcp"`
	Dealerships []Dealership `yaml:"dealerships"`
}

// Browser controls the Chrome automation layer.
type Browser struct {
	RemoteURL  string        `yaml:"remote_url"`
	Headless   *bool         `yaml:"headless"`
	Stealth    *bool         `yaml:"stealth"`
	NavTimeout time.Duration `yaml:"nav_timeout"`
}

// Session controls session renewal and action retry.
type Session struct {
	MaxAge      time.Duration `yaml:"max_age"`
	MaxRetries  int           `yaml:"max_retries"`
	BackoffUnit time.Duration `yaml:"backoff_unit"`
}

// Portal locates the dealer inventory portal.
type Portal struct {
	LoginURL     string        `yaml:"login_url"`
	InventoryURL string        `yaml:"inventory_url"`
	StepTimeout  time.Duration `yaml:"step_timeout"`
}

// Slack configures run-failure alerting. Token comes from
// STICKERMATCH_SLACK_TOKEN.
type Slack struct {
	Channel string `yaml:"channel"`
	Token   string `yaml:"-"`
}

// API configures the corrections HTTP listener. The bcrypt password hash
// comes from STICKERMATCH_API_PASSWORD_HASH; empty disables auth.
type API struct {
	Addr         string `yaml:"addr"`
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"-"`
}

// MCP configures the MCP tool surface.
type MCP struct {
	// Transport is "stdio" or empty (disabled).
	Transport string `yaml:"transport"`
}

// Dealership is one dealership's run configuration. The portal password
// comes from STICKERMATCH_PASSWORD_<ID> (ID upper-cased).
type Dealership struct {
	ID          string            `yaml:"id"`
	Name        string            `yaml:"name"`
	Username    string            `yaml:"username"`
	Password    string            `yaml:"-"`
	MaxVehicles int               `yaml:"max_vehicles"`
	Filters     map[string]string `yaml:"filters"`
}

func (c *System) defaults() {
	if c.DBPath == "" {
		c.DBPath = "data/stickermatch.db"
	}
	if c.CatalogPath == "" {
		c.CatalogPath = "data/catalog.json"
	}
	if c.OverridePath == "" {
		c.OverridePath = "data/overrides.json"
	}
	if c.ReportDir == "" {
		c.ReportDir = "reports"
	}
	if c.Algorithm == "" {
		c.Algorithm = "levenshtein"
	}
	if c.Session.MaxAge <= 0 {
		c.Session.MaxAge = 30 * time.Minute
	}
	if c.Session.MaxRetries <= 0 {
		c.Session.MaxRetries = 3
	}
	if c.Session.BackoffUnit <= 0 {
		c.Session.BackoffUnit = time.Second
	}
	if c.API.Username == "" {
		c.API.Username = "admin"
	}
	for i := range c.Dealerships {
		if c.Dealerships[i].MaxVehicles <= 0 {
			c.Dealerships[i].MaxVehicles = 50
		}
	}
}

// envOverrides pulls secrets from the environment into the config.
func (c *System) envOverrides() {
	if v := os.Getenv("STICKERMATCH_SLACK_TOKEN"); v != "" {
		c.Slack.Token = v
	}
	if v := os.Getenv("STICKERMATCH_API_PASSWORD_HASH"); v != "" {
		c.API.PasswordHash = v
	}
	if v := os.Getenv("STICKERMATCH_DB_PATH"); v != "" {
		c.DBPath = v
	}
	for i := range c.Dealerships {
		key := "STICKERMATCH_PASSWORD_" + envKey(c.Dealerships[i].ID)
		if v := os.Getenv(key); v != "" {
			c.Dealerships[i].Password = v
		}
	}
}

// envKey maps a dealership ID to its environment variable suffix.
func envKey(id string) string {
	out := make([]byte, 0, len(id))
	for i := 0; i < len(id); i++ {
		b := id[i]
		switch {
		case b >= 'a' && b <= 'z':
			out = append(out, b-'a'+'A')
		case b >= 'A' && b <= 'Z' || b >= '0' && b <= '9':
			out = append(out, b)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

// Load reads and validates the YAML config file, applies defaults, and
// resolves environment secrets.
func Load(path string) (*System, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := &System{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.defaults()
	cfg.envOverrides()

	if len(cfg.Dealerships) == 0 {
		return nil, fmt.Errorf("config: at least one dealership is required")
	}
	seen := map[string]bool{}
	for _, d := range cfg.Dealerships {
		if d.ID == "" {
			return nil, fmt.Errorf("config: dealership without id")
		}
		if seen[d.ID] {
			return nil, fmt.Errorf("config: duplicate dealership id %q", d.ID)
		}
		seen[d.ID] = true
	}
	return cfg, nil
}
