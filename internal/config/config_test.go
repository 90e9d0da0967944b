package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/tvguide")
	t.Setenv("REDIS_URL", "")
	t.Setenv("TVGUIDE_BASE_URL", "http://guide.local/api")
	t.Setenv("TVGUIDE_USER_AGENT", "")
	t.Setenv("TVGUIDE_TIMEOUT", "5s")
	t.Setenv("SERVER_PORT", "")

	c, err := Load()
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	if c.BaseURL != "http://guide.local/api" {
		t.Errorf("Unexpected base url %q", c.BaseURL)
	}
	if c.Timeout != 5*time.Second {
		t.Errorf("Expecting timeout 5s, got %s", c.Timeout)
	}
	if c.UserAgent != defaultUserAgent {
		t.Errorf("Expecting default user agent, got %q", c.UserAgent)
	}
	if c.ServerPort != defaultServerPort {
		t.Errorf("Expecting default port, got %q", c.ServerPort)
	}
	if err := c.RequireDatabase(); err != nil {
		t.Errorf("Unexpected error: %s", err)
	}
	if err := c.RequireRedis(); !errors.Is(err, ErrMissingRedisURL) {
		t.Errorf("Expecting ErrMissingRedisURL, got %v", err)
	}
}

func TestLoadIgnoresBadTimeout(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/tvguide")
	t.Setenv("TVGUIDE_TIMEOUT", "soon")

	c, err := Load()
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	if c.Timeout != defaultTimeout {
		t.Errorf("Expecting default timeout, got %s", c.Timeout)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tvguide.yaml")
	yaml := `
base_url: http://guide.local/api
timeout: 2m
database_url: postgres://localhost/tvguide
redis_url: redis://localhost:6379/0
server_port: "9090"
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	c, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	want := Config{
		BaseURL:     "http://guide.local/api",
		UserAgent:   defaultUserAgent,
		Timeout:     2 * time.Minute,
		DatabaseURL: "postgres://localhost/tvguide",
		RedisURL:    "redis://localhost:6379/0",
		ServerPort:  "9090",
	}
	if *c != want {
		t.Errorf("Expecting \n%#v,\n\tgot\n\t%#v", want, *c)
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadFromFile(filepath.Join(dir, "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expecting ErrNotExist, got %v", err)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("timeout: forever\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromFile(bad); err == nil {
		t.Errorf("Expecting an error for a malformed timeout")
	}

	broken := filepath.Join(dir, "broken.yaml")
	if err := os.WriteFile(broken, []byte("base_url: [unterminated\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromFile(broken); err == nil {
		t.Errorf("Expecting a YAML error")
	}
}

func TestApplyEnvFile(t *testing.T) {
	keys := []string{"TVGUIDE_TEST_A", "TVGUIDE_TEST_B", "TVGUIDE_TEST_C"}
	for _, k := range keys {
		os.Unsetenv(k)
	}
	t.Cleanup(func() {
		for _, k := range keys {
			os.Unsetenv(k)
		}
	})
	t.Setenv("TVGUIDE_TEST_C", "from-env")

	applyEnvFile([]byte(`
# comment
TVGUIDE_TEST_A="quoted value"
export TVGUIDE_TEST_B=plain
TVGUIDE_TEST_C=from-file
not a pair
`))

	tc := map[string]string{
		"TVGUIDE_TEST_A": "quoted value",
		"TVGUIDE_TEST_B": "plain",
		"TVGUIDE_TEST_C": "from-env",
	}
	for k, want := range tc {
		if got := os.Getenv(k); got != want {
			t.Errorf("%s: expecting %q, got %q", k, want, got)
		}
	}
}
