package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFromFile(t *testing.T) {
	cfg := &Config{}
	cfg.ConfigPath = filepath.Join(t.TempDir(), "config.yaml")

	content := "port: 9999\ngateway_url: http://gw:8888\nkernel_name: julia-1.10\ntoken: test-token\ndb_path: /tmp/custom/floatlab.db\n"
	if err := os.WriteFile(cfg.ConfigPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file error = %v", err)
	}

	if err := cfg.loadFromFile(); err != nil {
		t.Fatalf("loadFromFile() error = %v", err)
	}

	if cfg.Port != 9999 {
		t.Errorf("Port = %d, want 9999", cfg.Port)
	}
	if cfg.GatewayURL != "http://gw:8888" {
		t.Errorf("GatewayURL = %q", cfg.GatewayURL)
	}
	if cfg.KernelName != "julia-1.10" {
		t.Errorf("KernelName = %q", cfg.KernelName)
	}
	if cfg.DBPath != "/tmp/custom/floatlab.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
}

func TestLoadFromFileRejectsBadYAML(t *testing.T) {
	cfg := &Config{}
	cfg.ConfigPath = filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfg.ConfigPath, []byte("port: [not a number"), 0o600); err != nil {
		t.Fatalf("write config file error = %v", err)
	}
	if err := cfg.loadFromFile(); err == nil {
		t.Fatal("expected an error for malformed YAML")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{
		Port:       8765,
		GatewayURL: "http://127.0.0.1:8888",
		KernelName: "python3",
		Token:      "abc123",
		DBPath:     "/tmp/floatlab.db",
		ConfigPath: filepath.Join(dir, "nested", "config.yaml"),
	}

	if err := cfg.saveToFile(); err != nil {
		t.Fatalf("saveToFile() error = %v", err)
	}

	loaded := &Config{ConfigPath: cfg.ConfigPath}
	if err := loaded.loadFromFile(); err != nil {
		t.Fatalf("loadFromFile() error = %v", err)
	}
	if loaded.Token != "abc123" || loaded.Port != 8765 || loaded.KernelName != "python3" {
		t.Errorf("round trip lost fields: %+v", loaded)
	}
}

func TestValidateGatewayURL(t *testing.T) {
	if err := validateGatewayURL("ws://gw:8888"); err == nil {
		t.Error("expected ws scheme to be rejected")
	}
	if err := validateGatewayURL("https://gw"); err != nil {
		t.Errorf("https rejected: %v", err)
	}
}

func TestGenerateTokenIsUnique(t *testing.T) {
	a, err := generateToken()
	if err != nil {
		t.Fatalf("generateToken() error = %v", err)
	}
	b, err := generateToken()
	if err != nil {
		t.Fatalf("generateToken() error = %v", err)
	}
	if a == b {
		t.Error("two generated tokens collided")
	}
	if len(a) != 32 {
		t.Errorf("token length = %d, want 32 hex chars", len(a))
	}
}
