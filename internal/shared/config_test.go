package shared

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if config.Database.Path != "./tmx.db" {
			t.Errorf("expected database path ./tmx.db, got %s", config.Database.Path)
		}
		if config.Server.Port != 3000 {
			t.Errorf("expected server port 3000, got %d", config.Server.Port)
		}
		if config.Engine.Workers != 5 {
			t.Errorf("expected 5 workers, got %d", config.Engine.Workers)
		}
		if config.Platform.Timeout() != 30*time.Second {
			t.Errorf("expected 30s timeout, got %v", config.Platform.Timeout())
		}
		if config.Engine.PollInterval() != 2*time.Second {
			t.Errorf("expected 2s poll interval, got %v", config.Engine.PollInterval())
		}
		if config.Engine.Lease() != 30*time.Second {
			t.Errorf("expected 30s job lease, got %v", config.Engine.Lease())
		}
		if err := config.Validate(); err != nil {
			t.Errorf("default config should be valid: %v", err)
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}

		if config.Database.Path != DefaultConfig().Database.Path {
			t.Errorf("created config database path doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		testConfig := `[database]
path = "/custom/path.db"

[server]
host = "0.0.0.0"
port = 8080

[engine]
workers = 12
`
		if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load config: %v", err)
		}

		if config.Database.Path != "/custom/path.db" {
			t.Errorf("expected database path /custom/path.db, got %s", config.Database.Path)
		}
		if config.Server.Addr() != "0.0.0.0:8080" {
			t.Errorf("expected addr 0.0.0.0:8080, got %s", config.Server.Addr())
		}
		if config.Engine.Workers != 12 {
			t.Errorf("expected 12 workers, got %d", config.Engine.Workers)
		}
		if config.Engine.PageSize != 100 {
			t.Errorf("expected default page size to survive partial file, got %d", config.Engine.PageSize)
		}
	})

	t.Run("LoadConfig rejects invalid values", func(t *testing.T) {
		for _, content := range []string{"[engine]\nworkers = 0\n", "[engine]\nlease_seconds = 0\n"} {
			configPath := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
				t.Fatalf("failed to write test config: %v", err)
			}

			_, err := LoadConfig(configPath)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("%q: expected ErrInvalidConfig, got %v", content, err)
			}
		}
	})

	t.Run("LoadConfig missing file", func(t *testing.T) {
		if _, err := LoadConfig("/nonexistent/config.toml"); err == nil {
			t.Error("expected error for missing file")
		}
	})
}
