package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/capiscio/didjwt/pkg/credentials"
	"github.com/capiscio/didjwt/pkg/jwt"
	"github.com/capiscio/didjwt/pkg/transport"
)

var (
	tokenKey      string
	tokenIssuer   string
	tokenClaims   string
	tokenExpires  time.Duration
	tokenNoJTI    bool
	tokenAudience string
	tokenTimeout  time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Sign, decode and verify DID JWTs",
}

var tokenSignCmd = &cobra.Command{
	Use:   "sign",
	Short: "Sign a JWT as an identity",
	Long: `Sign a JWT as an identity. did:uport identities sign with ES256K,
everything else with ES256K-R.`,
	Example: `  didtool token sign --key $KEY --claims '{"sub":"did:ethr:0x...","claim":{"name":"Ada"}}'`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		signer, err := loadSigner(tokenKey)
		if err != nil {
			return err
		}
		claims, err := parseClaims(tokenClaims)
		if err != nil {
			return err
		}
		if !tokenNoJTI && !claims.Has("jti") {
			claims.Set("jti", jwt.String(uuid.NewString()))
		}

		token, err := jwt.NewIssuer(issuerFor(signer.Address()), signer).Issue(cmd.Context(), claims, tokenExpires)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

var tokenDecodeCmd = &cobra.Command{
	Use:   "decode <jwt>",
	Short: "Print a JWT's header and payload without verifying it",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		tok, err := jwt.Decode(args[0])
		if err != nil {
			return err
		}
		return printToken(tok)
	},
}

var tokenVerifyCmd = &cobra.Command{
	Use:   "verify <jwt>",
	Short: "Verify a JWT against its issuer's resolved keys",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resolver, err := newResolver()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), tokenTimeout)
		defer cancel()

		tok, err := jwt.NewVerifier(resolver).VerifyWithOptions(ctx, args[0], jwt.VerifyOptions{Audience: tokenAudience})
		if err != nil {
			logger.Debug().Str("code", jwt.GetErrorCode(err)).Msg("verification failed")
			return err
		}
		logger.Info().Str("iss", tok.Issuer()).Str("alg", string(tok.Header.Algorithm)).Msg("token verified")
		return printToken(tok)
	},
}

var tokenFromURICmd = &cobra.Command{
	Use:   "from-uri <redirect-uri>",
	Short: "Extract the token or transaction hash from a wallet redirect URI",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		resp, err := transport.ParseRedirectURI(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s\t%s\n", resp.Kind, resp.Value)
		return nil
	},
}

func issuerFor(address string) string {
	if tokenIssuer != "" {
		return tokenIssuer
	}
	return address
}

func parseClaims(raw string) (*jwt.Claims, error) {
	claims := jwt.NewClaims()
	if raw == "" {
		return claims, nil
	}
	if err := json.Unmarshal([]byte(raw), claims); err != nil {
		return nil, fmt.Errorf("invalid claims JSON: %w", err)
	}
	return claims, nil
}

func printToken(tok *jwt.Token) error {
	payload, err := tok.Claims.MarshalJSON()
	if err != nil {
		return err
	}
	return printJSON(struct {
		Header  jwt.Header      `json:"header"`
		Payload json.RawMessage `json:"payload"`
	}{tok.Header, payload})
}

// newCredentials builds Credentials for the --key/--iss flags of a command.
func newCredentials(keyHex, issuer string) (*credentials.Credentials, error) {
	signer, err := loadSigner(keyHex)
	if err != nil {
		return nil, err
	}
	if issuer == "" {
		issuer = signer.Address()
	}
	resolver, err := newResolver()
	if err != nil {
		return nil, err
	}
	return credentials.New(issuer, signer, resolver), nil
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenSignCmd, tokenDecodeCmd, tokenVerifyCmd, tokenFromURICmd)

	tokenSignCmd.Flags().StringVar(&tokenKey, "key", "", "Private key hex (or "+EnvPrivateKey+")")
	tokenSignCmd.Flags().StringVar(&tokenIssuer, "iss", "", "Issuer identity (defaults to the key's address)")
	tokenSignCmd.Flags().StringVar(&tokenClaims, "claims", "", "Claims as a JSON object")
	tokenSignCmd.Flags().DurationVar(&tokenExpires, "expires", 0, "Lifetime; zero omits exp")
	tokenSignCmd.Flags().BoolVar(&tokenNoJTI, "no-jti", false, "Do not add a random jti claim")

	tokenVerifyCmd.Flags().StringVar(&tokenAudience, "aud", "", "Require this identity in the aud claim when present")
	tokenVerifyCmd.Flags().DurationVar(&tokenTimeout, "timeout", 30*time.Second, "Resolution timeout")
}
