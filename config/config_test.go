package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Session.ID != "default" {
		t.Errorf("expected default session id, got %s", cfg.Session.ID)
	}
	if cfg.Session.TypingDelay != 1500*time.Millisecond {
		t.Errorf("expected typing delay 1.5s, got %v", cfg.Session.TypingDelay)
	}
	if cfg.Storage.Backend != "file" {
		t.Errorf("expected file backend, got %s", cfg.Storage.Backend)
	}
	if cfg.Export.Format != "json" {
		t.Errorf("expected json export, got %s", cfg.Export.Format)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "bad session id",
			modify:  func(c *Config) { c.Session.ID = "../escape" },
			wantErr: true,
		},
		{
			name:    "negative delay",
			modify:  func(c *Config) { c.Session.TypingDelay = -time.Second },
			wantErr: true,
		},
		{
			name:    "file backend without dir",
			modify:  func(c *Config) { c.Storage.Dir = "" },
			wantErr: true,
		},
		{
			name:    "memory backend without dir",
			modify:  func(c *Config) { c.Storage.Backend = "memory"; c.Storage.Dir = "" },
			wantErr: false,
		},
		{
			name:    "nats without url",
			modify:  func(c *Config) { c.Storage.Backend = "nats" },
			wantErr: true,
		},
		{
			name:    "redis with url",
			modify:  func(c *Config) { c.Storage.Backend = "redis"; c.Storage.RedisURL = "redis://localhost:6379/0" },
			wantErr: false,
		},
		{
			name:    "unknown backend",
			modify:  func(c *Config) { c.Storage.Backend = "sqlite" },
			wantErr: true,
		},
		{
			name:    "unknown export format",
			modify:  func(c *Config) { c.Export.Format = "xml" },
			wantErr: true,
		},
		{
			name:    "unknown log level",
			modify:  func(c *Config) { c.Log.Level = "trace" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Storage.Dir = t.TempDir()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	content := `
session:
  id: "guest-42"
  typing_delay: 250ms
catalog:
  path: "/etc/intake/questions.yaml"
storage:
  backend: nats
  nats_url: "nats://test:4222"
export:
  format: csv
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.Session.ID != "guest-42" {
		t.Errorf("expected session guest-42, got %s", cfg.Session.ID)
	}
	if cfg.Session.TypingDelay != 250*time.Millisecond {
		t.Errorf("expected typing delay 250ms, got %v", cfg.Session.TypingDelay)
	}
	if cfg.Session.StartDelay != time.Second {
		t.Errorf("expected default start delay to survive, got %v", cfg.Session.StartDelay)
	}
	if cfg.Catalog.Path != "/etc/intake/questions.yaml" {
		t.Errorf("unexpected catalog path %s", cfg.Catalog.Path)
	}
	if cfg.Storage.Backend != "nats" || cfg.Storage.NATSURL != "nats://test:4222" {
		t.Errorf("unexpected storage %+v", cfg.Storage)
	}
	if cfg.Storage.Bucket != "INTAKE_SESSIONS" {
		t.Errorf("expected default bucket, got %s", cfg.Storage.Bucket)
	}
	if cfg.Export.Format != "csv" {
		t.Errorf("expected csv export, got %s", cfg.Export.Format)
	}
}

func TestConfigMerge(t *testing.T) {
	base := DefaultConfig()
	override := &Config{
		Session: SessionConfig{
			Greeting: "Hello!",
		},
		Storage: StorageConfig{
			Backend:  "redis",
			RedisURL: "redis://cache:6379",
		},
	}

	base.Merge(override)

	if base.Session.Greeting != "Hello!" {
		t.Errorf("expected greeting override, got %s", base.Session.Greeting)
	}
	// ID should remain from base since override didn't set it
	if base.Session.ID != "default" {
		t.Errorf("expected session id to remain default, got %s", base.Session.ID)
	}
	if base.Storage.Backend != "redis" || base.Storage.RedisURL != "redis://cache:6379" {
		t.Errorf("unexpected storage %+v", base.Storage)
	}
}

func TestConfigSaveToFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "subdir", "config.yaml")

	cfg := DefaultConfig()
	cfg.Session.ID = "saved"

	if err := cfg.SaveToFile(configPath); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Error("config file was not created")
	}

	loaded, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("failed to load saved config: %v", err)
	}
	if loaded.Session.ID != "saved" {
		t.Errorf("expected session saved, got %s", loaded.Session.ID)
	}
	if loaded.Session.TypingDelay != cfg.Session.TypingDelay {
		t.Errorf("typing delay did not survive a round trip: %v", loaded.Session.TypingDelay)
	}
}

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoaderLayers(t *testing.T) {
	home := t.TempDir()
	project := t.TempDir()
	work := filepath.Join(project, "sub", "dir")
	if err := os.MkdirAll(work, 0755); err != nil {
		t.Fatal(err)
	}

	writeConfig(t, filepath.Join(home, UserConfigDir, UserConfigFile), `
storage:
  backend: redis
  redis_url: redis://user:6379
log:
  level: debug
`)
	writeConfig(t, filepath.Join(project, ProjectConfigFile), `
session:
  id: project
log:
  level: warn
`)

	l := NewLoader(nil)
	l.homeDir = home
	l.workDir = work
	l.environ = map[string]string{
		"INTAKE_LOG_LEVEL":            "error",
		"INTAKE_SESSION_TYPING_DELAY": "3s",
	}

	cfg, err := l.Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// User layer survives a project file that does not mention it.
	if cfg.Storage.Backend != "redis" || cfg.Storage.RedisURL != "redis://user:6379" {
		t.Errorf("user storage lost: %+v", cfg.Storage)
	}
	if cfg.Session.ID != "project" {
		t.Errorf("expected project session id, got %s", cfg.Session.ID)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("expected env to win for log level, got %s", cfg.Log.Level)
	}
	if cfg.Session.TypingDelay != 3*time.Second {
		t.Errorf("expected env typing delay 3s, got %v", cfg.Session.TypingDelay)
	}
	if cfg.Storage.Dir != filepath.Join(home, ".local", "state", "intake") {
		t.Errorf("unexpected default state dir %s", cfg.Storage.Dir)
	}
}

func TestLoaderExplicitPath(t *testing.T) {
	l := NewLoader(nil)
	l.homeDir = t.TempDir()
	l.workDir = t.TempDir()
	l.environ = map[string]string{}

	explicit := filepath.Join(t.TempDir(), "custom.yaml")
	writeConfig(t, explicit, "export:\n  format: formatted\n")

	cfg, err := l.Load(explicit)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Export.Format != "formatted" {
		t.Errorf("expected formatted export, got %s", cfg.Export.Format)
	}

	if _, err := l.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing explicit config")
	}
}

func TestLoaderRejectsInvalidEnv(t *testing.T) {
	l := NewLoader(nil)
	l.homeDir = t.TempDir()
	l.workDir = t.TempDir()
	l.environ = map[string]string{"INTAKE_STORAGE_BACKEND": "sqlite"}

	if _, err := l.Load(""); err == nil {
		t.Error("expected validation error")
	}

	l.environ = map[string]string{"INTAKE_SESSION_START_DELAY": "soon"}
	if _, err := l.Load(""); err == nil {
		t.Error("expected parse error")
	}
}

func TestEnsureUserConfig(t *testing.T) {
	l := NewLoader(nil)
	l.homeDir = t.TempDir()

	want := filepath.Join(l.homeDir, UserConfigDir, UserConfigFile)
	path, created, err := l.EnsureUserConfig()
	if err != nil {
		t.Fatalf("EnsureUserConfig() error = %v", err)
	}
	if path != want || !created {
		t.Errorf("EnsureUserConfig() = %q, %v; want %q, true", path, created, want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Errorf("user config not created: %v", err)
	}
	path, created, err = l.EnsureUserConfig()
	if err != nil || created || path != want {
		t.Errorf("second call should be a no-op, got %q, %v, %v", path, created, err)
	}
}
