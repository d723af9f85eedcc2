// Package main is the entry point for the didtool CLI.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/capiscio/didjwt/internal/config"
	"github.com/capiscio/didjwt/pkg/crypto"
	"github.com/capiscio/didjwt/pkg/did"
	"github.com/capiscio/didjwt/pkg/registry"
	"github.com/capiscio/didjwt/pkg/transport"
)

// EnvPrivateKey holds the signing key when --key is not given.
const EnvPrivateKey = "DIDJWT_PRIVATE_KEY"

var (
	configPath    string
	networkName   string
	documentsPath string
	verbose       bool

	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "didtool",
	Short: "DID JWT toolkit",
	Long: `Sign and verify secp256k1 JWTs for did:ethr and did:uport identities,
resolve identities from the ERC-1056 registry and build wallet requests.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		level := zerolog.InfoLevel
		if verbose {
			level = zerolog.DebugLevel
		}
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
			Level(level).
			With().Timestamp().Logger()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML network configuration")
	rootCmd.PersistentFlags().StringVar(&networkName, "network", "", "Default network (overrides config and "+config.EnvNetwork+")")
	rootCmd.PersistentFlags().StringVar(&documentsPath, "documents", "", "Resolve from a local YAML documents file instead of the registry")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func loadConfig() (config.Config, error) {
	if networkName != "" {
		if err := os.Setenv(config.EnvNetwork, networkName); err != nil {
			return config.Config{}, err
		}
	}
	return config.Load(configPath)
}

// newRegistry builds the on-chain resolver from configuration.
func newRegistry() (*registry.Resolver, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return registry.NewResolver(
		transport.NewHTTPTransport(),
		cfg.RegistryNetworks(),
		registry.WithLogger(logger),
	)
}

// newResolver returns the resolver used for verification: the local
// documents file when given, otherwise the registry.
func newResolver() (did.Resolver, error) {
	if documentsPath != "" {
		return registry.NewLocalResolver(documentsPath), nil
	}
	return newRegistry()
}

// loadSigner reads a hex private key from the flag or the environment.
func loadSigner(keyHex string) (*crypto.KeyPair, error) {
	if keyHex == "" {
		keyHex = os.Getenv(EnvPrivateKey)
	}
	if keyHex == "" {
		return nil, fmt.Errorf("a private key is required (--key or %s)", EnvPrivateKey)
	}
	return crypto.NewKeyPair(keyHex)
}
