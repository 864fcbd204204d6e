package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	// Test loading with no config file (should use defaults)
	tmpDir := t.TempDir()

	cfg, err := LoadFrom(tmpDir)
	if err != nil {
		t.Fatalf("expected no error loading defaults, got %v", err)
	}

	if cfg == nil {
		t.Fatal("expected config to be non-nil")
	}

	if cfg.Server.Port != 4070 {
		t.Errorf("expected default port 4070, got %d", cfg.Server.Port)
	}

	if cfg.Columns.Store != StoreFile {
		t.Errorf("expected default store 'file', got %s", cfg.Columns.Store)
	}

	if cfg.Columns.FlushDelay != 3*time.Second {
		t.Errorf("expected default flush delay 3s, got %s", cfg.Columns.FlushDelay)
	}

	if !cfg.Properties.CollapseSingleRoot {
		t.Error("expected collapse_single_root to default to true")
	}

	if cfg.Commands.MaxDepth != 100 {
		t.Errorf("expected default max depth 100, got %d", cfg.Commands.MaxDepth)
	}
}

func TestLoadWithConfigFile(t *testing.T) {
	tmpDir := t.TempDir()

	configContent := `
log:
  level: debug
  development: true
properties:
  show_expensive: true
columns:
  store: sqlite
  dsn: file:columns.db
  flush_delay: 500ms
server:
  port: 8080
  host: 0.0.0.0
`
	if err := os.WriteFile(filepath.Join(tmpDir, "propsheet.yml"), []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFrom(tmpDir)
	if err != nil {
		t.Fatalf("expected no error loading config, got %v", err)
	}

	if cfg.Log.Level != "debug" || !cfg.Log.Development {
		t.Errorf("unexpected log config: %+v", cfg.Log)
	}

	if !cfg.Properties.ShowExpensive {
		t.Error("expected show_expensive to be true")
	}

	if cfg.Columns.Store != StoreSQLite {
		t.Errorf("expected store sqlite, got %s", cfg.Columns.Store)
	}

	if cfg.Columns.FlushDelay != 500*time.Millisecond {
		t.Errorf("expected flush delay 500ms, got %s", cfg.Columns.FlushDelay)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Server.Port)
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid defaults",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "unknown store",
			mutate:  func(c *Config) { c.Columns.Store = "etcd" },
			wantErr: true,
		},
		{
			name: "sqlite without dsn",
			mutate: func(c *Config) {
				c.Columns.Store = StoreSQLite
				c.Columns.DSN = ""
			},
			wantErr: true,
		},
		{
			name:    "negative flush delay",
			mutate:  func(c *Config) { c.Columns.FlushDelay = -time.Second },
			wantErr: true,
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Columns:  ColumnsConfig{Store: StoreFile, Path: "columns.json", FlushDelay: time.Second},
				Commands: CommandsConfig{MaxDepth: 10},
				Server:   ServerConfig{Port: 4070, Host: "localhost"},
			}
			tt.mutate(cfg)
			err := validateConfig(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadEnvOverride(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("PROPSHEET_SERVER_PORT", "9090")

	cfg, err := LoadFrom(tmpDir)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected env override port 9090, got %d", cfg.Server.Port)
	}
}
