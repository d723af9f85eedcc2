package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/capiscio/didjwt/internal/callback"
	"github.com/capiscio/didjwt/pkg/credentials"
)

var (
	serveKey    string
	serveIssuer string
	serveAddr   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Receive and verify disclosure responses",
	Long: `Start an HTTP server that accepts POST /callback {"access_token": "<jwt>"}
from wallets, verifies the response against the issuer's resolved keys and
checks that it is addressed to this identity.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		creds, err := newCredentials(serveKey, serveIssuer)
		if err != nil {
			return err
		}
		addr := serveAddr
		if addr == "" {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			addr = cfg.Callback.Addr
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		server := callback.NewServer(creds,
			callback.WithLogger(logger),
			callback.OnProfile(func(p *credentials.Profile) {
				_ = printJSON(p)
			}),
		)
		logger.Info().Str("did", creds.DID()).Msg("accepting disclosure responses")
		return server.Run(ctx, addr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveKey, "key", "", "Private key hex (or "+EnvPrivateKey+")")
	serveCmd.Flags().StringVar(&serveIssuer, "iss", "", "This app's identity (defaults to the key's address)")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (defaults to config callback.addr)")
}
