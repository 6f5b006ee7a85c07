package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.ImageSize != 224 {
		t.Errorf("ImageSize = %d, want 224", cfg.ImageSize)
	}
	if cfg.CacheTTL != time.Hour {
		t.Errorf("CacheTTL = %v, want 1h", cfg.CacheTTL)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "port: 9000\nimage_size: 128\nuse_mock_model: true\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Port)
	}
	if cfg.ImageSize != 128 {
		t.Errorf("ImageSize = %d, want 128", cfg.ImageSize)
	}
	if !cfg.UseMockModel {
		t.Error("UseMockModel should be true")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("THYROSCAN_PORT", "7788")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != 7788 {
		t.Errorf("Port = %d, want env override 7788", cfg.Port)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		return cfg
	}

	cfg := base()
	cfg.Port = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for port 0")
	}

	cfg = base()
	cfg.MetricsPort = cfg.Port
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for equal ports")
	}

	cfg = base()
	cfg.Model = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for empty model path without mock")
	}
	cfg.UseMockModel = true
	if err := cfg.Validate(); err != nil {
		t.Errorf("mock mode should not need a model path, got %v", err)
	}

	cfg = base()
	cfg.MaxUploadMB = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero upload cap")
	}
}

func TestMaxUploadBytes(t *testing.T) {
	cfg := &Config{MaxUploadMB: 10}
	if got := cfg.MaxUploadBytes(); got != 10<<20 {
		t.Errorf("MaxUploadBytes = %d, want %d", got, 10<<20)
	}
}
