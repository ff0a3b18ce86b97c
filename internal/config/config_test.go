package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"vigil/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("VIGIL_BACKEND_URL", "")
	t.Setenv("VIGIL_NTFY_TOPIC", "")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved != filepath.Join(tempHome, ".config", "vigil", "config.toml") {
		t.Fatalf("unexpected resolved path %q", resolved)
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}
	if cfg.Paths.StateDir != filepath.Join(tempHome, ".local", "share", "vigil") {
		t.Fatalf("unexpected state dir: %q", cfg.Paths.StateDir)
	}
	if cfg.Backend.URL != "http://localhost:8000" {
		t.Fatalf("unexpected backend url: %q", cfg.Backend.URL)
	}
	if cfg.StageTimeout() != 0 {
		t.Fatalf("expected no stage timeout by default, got %s", cfg.StageTimeout())
	}
	if cfg.ResultsDelay() != time.Second {
		t.Fatalf("unexpected results delay %s", cfg.ResultsDelay())
	}
	if !cfg.History.Enabled {
		t.Fatal("expected history enabled by default")
	}
	if cfg.HistoryPath() != filepath.Join(cfg.Paths.StateDir, "history.db") {
		t.Fatalf("unexpected history path %q", cfg.HistoryPath())
	}
}

func TestLoadCustomConfig(t *testing.T) {
	t.Setenv("VIGIL_BACKEND_URL", "")
	dir := t.TempDir()
	path := filepath.Join(dir, "vigil.toml")
	content := `
[backend]
url = "http://analysis.local:9000/"
stage_timeout = 600

[paths]
state_dir = "` + filepath.Join(dir, "state") + `"

[logging]
format = "JSON"
level = "DEBUG"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected %q to be loaded, got %q exists=%v", path, resolved, exists)
	}
	if cfg.Backend.URL != "http://analysis.local:9000" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Backend.URL)
	}
	if cfg.StageTimeout() != 10*time.Minute {
		t.Fatalf("unexpected stage timeout %s", cfg.StageTimeout())
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("expected normalized logging, got %+v", cfg.Logging)
	}
	if cfg.Backend.RequestTimeout != 30 {
		t.Fatalf("expected default request timeout, got %d", cfg.Backend.RequestTimeout)
	}
}

func TestEnvironmentFallbacks(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("VIGIL_BACKEND_URL", "https://backend.example")
	t.Setenv("VIGIL_NTFY_TOPIC", " https://ntfy.sh/vigil ")

	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Backend.URL != "https://backend.example" {
		t.Fatalf("expected env backend url, got %q", cfg.Backend.URL)
	}
	if cfg.Notifications.NtfyTopic != "https://ntfy.sh/vigil" {
		t.Fatalf("expected env ntfy topic, got %q", cfg.Notifications.NtfyTopic)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"relative url", func(c *config.Config) { c.Backend.URL = "localhost:8000" }, "backend.url"},
		{"ftp url", func(c *config.Config) { c.Backend.URL = "ftp://host" }, "scheme"},
		{"negative stage timeout", func(c *config.Config) { c.Backend.StageTimeout = -1 }, "stage_timeout"},
		{"template without id", func(c *config.Config) { c.Backend.PreprocessOutputTemplate = "/tmp/out" }, "{video_id}"},
		{"negative delay", func(c *config.Config) { c.Run.ResultsDelayMS = -5 }, "results_delay_ms"},
		{"notify timeout", func(c *config.Config) { c.Notifications.RequestTimeout = 0 }, "notifications.request_timeout"},
		{"log level", func(c *config.Config) { c.Logging.Level = "trace" }, "logging.level"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestPreprocessOutputPath(t *testing.T) {
	cfg := config.Default()
	got := cfg.PreprocessOutputPath(42)
	if got != "../data/output/42/anomaly_recognition_preprocessor" {
		t.Fatalf("unexpected output path %q", got)
	}
}

func TestCreateSampleProducesLoadableConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("VIGIL_BACKEND_URL", "")
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var decoded config.Config
	if err := toml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("sample is not valid TOML: %v", err)
	}
	if decoded.Backend.URL != config.Default().Backend.URL {
		t.Fatalf("sample backend url drifted from defaults: %q", decoded.Backend.URL)
	}
	if _, _, _, err := config.Load(path); err != nil {
		t.Fatalf("Load(sample): %v", err)
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.Paths.StateDir, cfg.Paths.LogDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s", dir)
		}
	}
}
