// Package config loads a node's identity, peer table, and key-share store
// settings from a YAML file, the ambient entry point the five core
// components (pkg/tss, internal/crypto/*, internal/protocol/*,
// internal/store) are wired into by cmd/node. Grounded in the teacher's
// indirect gopkg.in/yaml.v3 dependency.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// StoreMode selects how a node's key share is encrypted at rest.
type StoreMode string

const (
	StoreModeKMS   StoreMode = "kms"
	StoreModeLocal StoreMode = "local"
)

// Peer describes one other participant in the ceremony group.
type Peer struct {
	ID           string `yaml:"id"`
	Moniker      string `yaml:"moniker"`
	Index        int    `yaml:"index"`
	PublicKeyHex string `yaml:"publicKeyHex"` // compressed secp256k1 identity key
}

// Config is a node's full local configuration.
type Config struct {
	NodeID    string `yaml:"nodeId"`
	Moniker   string `yaml:"moniker"`
	Index     int    `yaml:"index"`
	Threshold int    `yaml:"threshold"`
	Peers     []Peer `yaml:"peers"`

	Store struct {
		Mode StoreMode `yaml:"mode"`
		Dir  string    `yaml:"dir"`
		// PassphraseEnv names the environment variable holding the local-mode
		// envelope passphrase; never stored in the file itself.
		PassphraseEnv string `yaml:"passphraseEnv"`
	} `yaml:"store"`
}

// Load reads and validates a node configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the structural invariants a node needs before it can
// join a ceremony: a non-empty identity, a sane threshold relative to the
// group size, and a recognized store mode.
func (c *Config) Validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("config: nodeId is required")
	}
	if c.Index < 1 {
		return fmt.Errorf("config: index must be >= 1")
	}
	total := len(c.Peers) + 1
	if c.Threshold < 1 || c.Threshold > total {
		return fmt.Errorf("config: threshold %d is invalid for a group of %d", c.Threshold, total)
	}
	switch c.Store.Mode {
	case StoreModeKMS, StoreModeLocal:
	default:
		return fmt.Errorf("config: unknown store mode %q", c.Store.Mode)
	}
	if c.Store.Mode == StoreModeLocal && c.Store.PassphraseEnv == "" {
		return fmt.Errorf("config: local store mode requires passphraseEnv")
	}
	if c.Store.Dir == "" {
		return fmt.Errorf("config: store.dir is required")
	}
	return nil
}

// Passphrase reads the local-mode envelope passphrase from its configured
// environment variable.
func (c *Config) Passphrase() ([]byte, error) {
	if c.Store.Mode != StoreModeLocal {
		return nil, fmt.Errorf("config: passphrase only applies to local store mode")
	}
	v := os.Getenv(c.Store.PassphraseEnv)
	if v == "" {
		return nil, fmt.Errorf("config: environment variable %s is unset", c.Store.PassphraseEnv)
	}
	return []byte(v), nil
}

// TotalParties is the ceremony group size: this node plus its peers.
func (c *Config) TotalParties() int {
	return len(c.Peers) + 1
}
