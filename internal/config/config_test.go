package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

const minimalConfig = `
base_url: https://letterflow.test
provider:
  base_url: https://api.provider.test
  api_key: key-123
`

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.ListenAddr != ":8090" {
		t.Errorf("listen addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Provider.BatchSize != 100 {
		t.Errorf("batch size = %d, want 100", cfg.Provider.BatchSize)
	}
	if cfg.Provider.BatchDelay != time.Second {
		t.Errorf("batch delay = %v, want 1s", cfg.Provider.BatchDelay)
	}
	if cfg.RateLimit.Subscribe.MaxRequests != 5 || cfg.RateLimit.Subscribe.Window != time.Hour {
		t.Errorf("subscribe limit = %+v", cfg.RateLimit.Subscribe)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
	if cfg.Shortener.Enabled() {
		t.Error("shortener should be disabled without an api key")
	}
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
base_url: https://letterflow.test
server:
  listen_addr: ":9000"
provider:
  base_url: https://api.provider.test
  api_key: key-123
  batch_size: 25
  batch_delay: 500ms
shortener:
  base_url: https://s.test
  api_key: sk-1
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.ListenAddr != ":9000" {
		t.Errorf("listen addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Provider.BatchSize != 25 {
		t.Errorf("batch size = %d", cfg.Provider.BatchSize)
	}
	if cfg.Provider.BatchDelay != 500*time.Millisecond {
		t.Errorf("batch delay = %v", cfg.Provider.BatchDelay)
	}
	if !cfg.Shortener.Enabled() {
		t.Error("shortener should be enabled")
	}
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"missing base_url", `
provider:
  base_url: https://api.provider.test
  api_key: key-123
`},
		{"missing provider base_url", `
base_url: https://letterflow.test
provider:
  api_key: key-123
`},
		{"missing provider api_key", `
base_url: https://letterflow.test
provider:
  base_url: https://api.provider.test
`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.content)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}
