// Package config loads the networks and server settings used by didtool.
// Settings come from an optional YAML file, then from the environment.
package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/capiscio/didjwt/pkg/registry"
)

// Environment variables that override the file.
const (
	EnvRPCURL       = "DIDJWT_RPC_URL"
	EnvNetwork      = "DIDJWT_NETWORK"
	EnvRegistry     = "DIDJWT_REGISTRY"
	EnvCallbackAddr = "DIDJWT_CALLBACK_ADDR"
)

const defaultCallbackAddr = ":8080"

// ErrInvalidConfig is returned when a loaded configuration fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the full didtool configuration.
type Config struct {
	// Network names the default network; empty means the first one.
	Network  string    `yaml:"network"`
	Networks []Network `yaml:"networks"`
	Callback Callback  `yaml:"callback"`
}

// Network describes one Ethereum network and its registry deployment.
type Network struct {
	Name     string `yaml:"name"`
	ID       string `yaml:"id"`
	RPCURL   string `yaml:"rpc_url"`
	Registry string `yaml:"registry"`

	// ChainID enables EIP-155 signing; zero keeps legacy transactions.
	ChainID int64 `yaml:"chain_id"`
}

// Callback configures the disclosure response receiver.
type Callback struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in configuration for the public networks.
func Default() Config {
	return Config{
		Network: "mainnet",
		Networks: []Network{
			{Name: "mainnet", ID: "0x1", RPCURL: "https://mainnet.infura.io/v3", Registry: registry.DefaultRegistryAddress},
			{Name: "ropsten", ID: "0x3", RPCURL: "https://ropsten.infura.io/v3", Registry: registry.DefaultRegistryAddress},
			{Name: "rinkeby", ID: "0x4", RPCURL: "https://rinkeby.infura.io/v3", Registry: registry.DefaultRegistryAddress},
			{Name: "kovan", ID: "0x2a", RPCURL: "https://kovan.infura.io/v3", Registry: registry.DefaultRegistryAddress},
		},
		Callback: Callback{Addr: defaultCallbackAddr},
	}
}

// Load builds the configuration. An empty path uses the defaults. A .env
// file in the working directory is read first; it never overrides variables
// already set in the process environment.
func Load(path string) (Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return Config{}, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		var fromFile Config
		if err := yaml.Unmarshal(data, &fromFile); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
		cfg.merge(fromFile)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) merge(other Config) {
	if other.Network != "" {
		c.Network = other.Network
	}
	if len(other.Networks) > 0 {
		c.Networks = other.Networks
		if other.Network == "" {
			c.Network = ""
		}
	}
	if other.Callback.Addr != "" {
		c.Callback.Addr = other.Callback.Addr
	}
}

// applyEnv overrides the selected network's RPC URL and registry.
func (c *Config) applyEnv() {
	if name, ok := os.LookupEnv(EnvNetwork); ok && name != "" {
		c.Network = name
	}
	if addr, ok := os.LookupEnv(EnvCallbackAddr); ok && addr != "" {
		c.Callback.Addr = addr
	}

	n := c.selected()
	if n == nil {
		return
	}
	if url, ok := os.LookupEnv(EnvRPCURL); ok && url != "" {
		n.RPCURL = url
	}
	if registry, ok := os.LookupEnv(EnvRegistry); ok && registry != "" {
		n.Registry = registry
	}
}

func (c *Config) selected() *Network {
	if len(c.Networks) == 0 {
		return nil
	}
	if c.Network == "" {
		return &c.Networks[0]
	}
	for i := range c.Networks {
		if strings.EqualFold(c.Networks[i].Name, c.Network) || strings.EqualFold(c.Networks[i].ID, c.Network) {
			return &c.Networks[i]
		}
	}
	return nil
}

// Selected returns the default network.
func (c *Config) Selected() (Network, error) {
	n := c.selected()
	if n == nil {
		return Network{}, fmt.Errorf("%w: unknown network %q", ErrInvalidConfig, c.Network)
	}
	return *n, nil
}

// Validate checks every network and the selected network name.
func (c *Config) Validate() error {
	if len(c.Networks) == 0 {
		return fmt.Errorf("%w: no networks", ErrInvalidConfig)
	}
	seen := make(map[string]bool, len(c.Networks))
	for _, n := range c.Networks {
		if n.Name == "" {
			return fmt.Errorf("%w: network without name", ErrInvalidConfig)
		}
		if seen[strings.ToLower(n.Name)] {
			return fmt.Errorf("%w: duplicate network %q", ErrInvalidConfig, n.Name)
		}
		seen[strings.ToLower(n.Name)] = true
		if n.RPCURL == "" {
			return fmt.Errorf("%w: network %q has no rpc_url", ErrInvalidConfig, n.Name)
		}
		if !common.IsHexAddress(n.Registry) {
			return fmt.Errorf("%w: network %q registry %q is not an address", ErrInvalidConfig, n.Name, n.Registry)
		}
		if n.ChainID < 0 {
			return fmt.Errorf("%w: network %q has negative chain_id", ErrInvalidConfig, n.Name)
		}
	}
	if _, err := c.Selected(); err != nil {
		return err
	}
	return nil
}

// RegistryNetworks converts the configuration for registry.NewResolver.
// The selected network comes first so it serves identities without one.
func (c *Config) RegistryNetworks() []registry.Network {
	selected := c.selected()
	out := make([]registry.Network, 0, len(c.Networks))
	for i := range c.Networks {
		n := c.Networks[i]
		rn := registry.Network{
			Name:     n.Name,
			ID:       n.ID,
			RPCURL:   n.RPCURL,
			Registry: common.HexToAddress(n.Registry),
		}
		if n.ChainID > 0 {
			rn.ChainID = big.NewInt(n.ChainID)
		}
		if &c.Networks[i] == selected {
			out = append([]registry.Network{rn}, out...)
		} else {
			out = append(out, rn)
		}
	}
	return out
}
