package client

import (
	"crypto/ed25519"
	"path/filepath"
	"testing"

	"github.com/semp-project/semp/internal/crypto"
	"github.com/semp-project/semp/internal/transport"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope", "config.json"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ServerURL != transport.DefaultServerURL {
		t.Errorf("ServerURL = %q", cfg.ServerURL)
	}
	if cfg.Contacts == nil {
		t.Error("Contacts map not initialized")
	}
}

func TestConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "semp", "config.json")

	pair, err := crypto.GenerateIdentityKeyPair()
	if err != nil {
		t.Fatalf("GenerateIdentityKeyPair: %v", err)
	}
	boxPair, err := crypto.GenerateExchangeKeyPair()
	if err != nil {
		t.Fatalf("GenerateExchangeKeyPair: %v", err)
	}

	original := &Config{
		Address:       "@a1b2c3d4.msg.example.com",
		HomeHost:      "msg.example.com",
		ServerURL:     "https://msg.example.com",
		SigningSeed:   pair.Private.Seed(),
		BoxPublicKey:  boxPair.Public[:],
		BoxPrivateKey: boxPair.Private[:],
		Contacts:      map[string]string{"@feedf00d.other.example": "aa"},
	}
	if err := SaveConfig(path, original); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if loaded.Address != original.Address || loaded.ServerURL != original.ServerURL {
		t.Errorf("round trip mangled config: %+v", loaded)
	}

	// The rebuilt signing key signs like the original.
	key, err := loaded.SigningKey()
	if err != nil {
		t.Fatalf("SigningKey: %v", err)
	}
	msg := []byte("probe")
	if !ed25519.Verify(pair.Public, msg, ed25519.Sign(key, msg)) {
		t.Error("rebuilt key does not match original")
	}

	name, err := loaded.UserName()
	if err != nil {
		t.Fatalf("UserName: %v", err)
	}
	if name != "a1b2c3d4" {
		t.Errorf("UserName = %q", name)
	}
}

func TestUserNameUnregistered(t *testing.T) {
	cfg := &Config{}
	if _, err := cfg.UserName(); err == nil {
		t.Error("UserName on empty config succeeded")
	}
	if _, err := cfg.SigningKey(); err == nil {
		t.Error("SigningKey on empty config succeeded")
	}
}
