package config

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port       int    `yaml:"port"`
	GatewayURL string `yaml:"gateway_url"`
	KernelName string `yaml:"kernel_name"`
	// GatewayToken authenticates against the kernel gateway, Token
	// authenticates our own clients. They are unrelated secrets.
	GatewayToken string `yaml:"gateway_token"`
	Token        string `yaml:"token"`
	DBPath       string `yaml:"db_path"`

	ConfigPath string `yaml:"-"`
	PrintToken bool   `yaml:"-"`
}

func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	cfg := &Config{
		Port:       8765,
		GatewayURL: "http://127.0.0.1:8888",
		KernelName: "python3",
		DBPath:     filepath.Join(homeDir, ".local", "share", "floatlab", "floatlab.db"),
		ConfigPath: filepath.Join(homeDir, ".config", "floatlab", "config.yaml"),
	}

	if err := cfg.loadFromFile(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	flag.IntVar(&cfg.Port, "port", cfg.Port, "server port (1-65535)")
	flag.StringVar(&cfg.GatewayURL, "gateway", cfg.GatewayURL, "Jupyter kernel gateway base URL")
	flag.StringVar(&cfg.KernelName, "kernel", cfg.KernelName, "kernelspec name to launch")
	flag.StringVar(&cfg.GatewayToken, "gateway-token", cfg.GatewayToken, "kernel gateway auth token")
	flag.StringVar(&cfg.Token, "token", cfg.Token, "authentication token (auto-generated if empty)")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "notebook database path")
	flag.BoolVar(&cfg.PrintToken, "print-token", false, "print token to stdout (for local debugging)")
	flag.Parse()

	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d: must be between 1 and 65535", cfg.Port)
	}
	if err := validateGatewayURL(cfg.GatewayURL); err != nil {
		return nil, err
	}

	if cfg.Token == "" {
		token, err := generateToken()
		if err != nil {
			return nil, fmt.Errorf("failed to generate token: %w", err)
		}
		cfg.Token = token
		if err := cfg.saveToFile(); err != nil {
			return nil, fmt.Errorf("failed to save config file: %w", err)
		}
	}

	return cfg, nil
}

func (c *Config) loadFromFile() error {
	data, err := os.ReadFile(c.ConfigPath)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("invalid YAML in %s: %w", c.ConfigPath, err)
	}
	return nil
}

func (c *Config) saveToFile() error {
	dir := filepath.Dir(c.ConfigPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(c.ConfigPath, data, 0600)
}

func validateGatewayURL(raw string) error {
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return fmt.Errorf("gateway URL %q must start with http:// or https://", raw)
	}
	return nil
}

func generateToken() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
