package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"tradevault/crypto"
)

// Config carries the daemon settings loaded from the TOML configuration file.
type Config struct {
	RPCAddress      string `toml:"RPCAddress"`
	DataDir         string `toml:"DataDir"`
	NetworkName     string `toml:"NetworkName"`
	CustodyAddress  string `toml:"CustodyAddress"`
	RPCAuthTokenEnv string `toml:"RPCAuthTokenEnv"`
}

const (
	defaultRPCAddress      = "127.0.0.1:8645"
	defaultDataDir         = "./tradevault-data"
	defaultNetworkName     = "tradevault-local"
	defaultRPCAuthTokenEnv = "TRADEVAULT_RPC_TOKEN"
)

// Load loads the configuration from the given path, creating a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = defaultRPCAddress
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = defaultDataDir
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = defaultNetworkName
	}
	if strings.TrimSpace(cfg.RPCAuthTokenEnv) == "" {
		cfg.RPCAuthTokenEnv = defaultRPCAuthTokenEnv
	}
}

// Validate checks field formats; a custody address, when set, must decode as
// a bech32 tradevault address.
func (cfg *Config) Validate() error {
	if strings.TrimSpace(cfg.CustodyAddress) != "" {
		addr, err := crypto.DecodeAddress(cfg.CustodyAddress)
		if err != nil {
			return fmt.Errorf("config: invalid CustodyAddress: %w", err)
		}
		if addr.Prefix() != crypto.TVPrefix {
			return fmt.Errorf("config: CustodyAddress must use the %q prefix", crypto.TVPrefix)
		}
	}
	return nil
}

// Custody returns the configured custody address, or ok=false when the
// daemon should derive one from a generated key.
func (cfg *Config) Custody() (addr [20]byte, ok bool, err error) {
	if strings.TrimSpace(cfg.CustodyAddress) == "" {
		return [20]byte{}, false, nil
	}
	decoded, err := crypto.DecodeAddress(cfg.CustodyAddress)
	if err != nil {
		return [20]byte{}, false, err
	}
	return decoded.Array(), true, nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
