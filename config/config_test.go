package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stickermatch.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const minimalConfig = `
dealerships:
  - id: valley-auto
    name: Valley Auto Group
    username: ops@valley.example
`

func TestLoad_AppliesDefaults(t *testing.T) {
	// WHAT: A minimal file gets usable defaults for paths, algorithm,
	// session limits, and the per-dealership vehicle cap.
	// WHY: Operators should only write what differs from stock behavior.
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.DBPath != "data/stickermatch.db" {
		t.Errorf("DBPath = %q, want default", cfg.DBPath)
	}
	if cfg.Algorithm != "levenshtein" {
		t.Errorf("Algorithm = %q, want levenshtein", cfg.Algorithm)
	}
	if cfg.Session.MaxRetries != 3 || cfg.Session.MaxAge != 30*time.Minute {
		t.Errorf("session defaults = %+v", cfg.Session)
	}
	if cfg.Dealerships[0].MaxVehicles != 50 {
		t.Errorf("MaxVehicles = %d, want 50", cfg.Dealerships[0].MaxVehicles)
	}
}

func TestLoad_EnvSecrets(t *testing.T) {
	// WHAT: Secrets come from environment variables, keyed per dealership,
	// and never from the YAML file.
	// WHY: The config file is meant to be committed; yaml:"-" on the
	// secret fields plus env resolution keeps credentials out of it.
	t.Setenv("STICKERMATCH_SLACK_TOKEN", "xoxb-test")
	t.Setenv("STICKERMATCH_PASSWORD_VALLEY_AUTO", "hunter2")

	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Slack.Token != "xoxb-test" {
		t.Errorf("Slack.Token = %q, want env value", cfg.Slack.Token)
	}
	if cfg.Dealerships[0].Password != "hunter2" {
		t.Errorf("Password = %q, want env value", cfg.Dealerships[0].Password)
	}
}

func TestEnvKey(t *testing.T) {
	// WHAT: Dealership IDs map to upper-case env var suffixes with
	// non-alphanumerics collapsed to underscores.
	cases := []struct {
		id   string
		want string
	}{
		{"valley-auto", "VALLEY_AUTO"},
		{"store.42", "STORE_42"},
		{"MAIN", "MAIN"},
	}
	for _, c := range cases {
		if got := envKey(c.id); got != c.want {
			t.Errorf("envKey(%q) = %q, want %q", c.id, got, c.want)
		}
	}
}

func TestLoad_ValidatesDealerships(t *testing.T) {
	// WHAT: No dealerships, a blank ID, and a duplicate ID each fail Load.
	// WHY: A misconfigured run should die at startup, not mid-schedule.
	cases := []struct {
		name string
		body string
	}{
		{"none", "schedule: '0 6 * * *'\n"},
		{"blank id", "dealerships:\n  - name: No ID\n"},
		{"duplicate id", "dealerships:\n  - id: d1\n  - id: d1\n"},
	}
	for _, c := range cases {
		if _, err := Load(writeConfig(t, c.body)); err == nil {
			t.Errorf("%s: Load error = nil, want error", c.name)
		}
	}
}

func TestLoad_MissingFile(t *testing.T) {
	// WHAT: A missing config file is an error naming the path.
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load of missing file: error = nil, want error")
	}
}
