package client

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/semp-project/semp/internal/models"
	"github.com/semp-project/semp/internal/transport"
)

// Config is the client's on-disk state. The signing seed is the ed25519
// seed; the box keys are the X25519 pair other users seal content to.
type Config struct {
	Address       string            `json:"address,omitempty"` // full @name.host, set after registration
	HomeHost      string            `json:"home_host"`
	ServerURL     string            `json:"server_url"`
	SigningSeed   models.HexBytes   `json:"signing_seed,omitempty"`
	BoxPublicKey  models.HexBytes   `json:"box_public_key,omitempty"`
	BoxPrivateKey models.HexBytes   `json:"box_private_key,omitempty"`
	Contacts      map[string]string `json:"contacts,omitempty"` // address -> box public key hex
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{
				ServerURL: transport.DefaultServerURL,
				Contacts:  make(map[string]string),
			}, nil
		}
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if cfg.ServerURL == "" {
		cfg.ServerURL = transport.DefaultServerURL
	}
	if cfg.Contacts == nil {
		cfg.Contacts = make(map[string]string)
	}
	return &cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

func GetConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "semp", "config.json"), nil
}

// SigningKey rebuilds the ed25519 private key from the stored seed.
func (c *Config) SigningKey() (ed25519.PrivateKey, error) {
	if len(c.SigningSeed) != ed25519.SeedSize {
		return nil, fmt.Errorf("no signing key in config, run 'config init' first")
	}
	return ed25519.NewKeyFromSeed(c.SigningSeed), nil
}

// UserName returns the local name part of the registered address.
func (c *Config) UserName() (string, error) {
	if c.Address == "" {
		return "", fmt.Errorf("not registered, run 'register' first")
	}
	name := c.Address[1:]
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			return name[:i], nil
		}
	}
	return "", fmt.Errorf("malformed address in config: %s", c.Address)
}
