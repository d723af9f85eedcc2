package main

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/capiscio/didjwt/pkg/credentials"
	"github.com/capiscio/didjwt/pkg/jwt"
)

var (
	reqKey      string
	reqIssuer   string
	reqCallback string
	reqNetwork  string
	reqExpires  time.Duration
	reqURL      string

	shareRequested     []string
	shareVerified      []string
	shareAccountType   string
	shareNotifications bool

	signData string
	signFrom string
	signRiss string

	claimJSON   string
	claimRiss   string
	claimAud    string
	claimSub    string
	claimApp    string
	claimExpiry time.Duration
)

var requestCmd = &cobra.Command{
	Use:   "request",
	Short: "Build signed requests for identity wallets",
}

var requestShareCmd = &cobra.Command{
	Use:   "share",
	Short: "Ask a wallet to disclose profile fields",
	Example: `  didtool request share --key $KEY --requested name,email --verified email \
    --callback https://app.example/callback --net 0x4`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		creds, err := newCredentials(reqKey, reqIssuer)
		if err != nil {
			return err
		}
		act := credentials.AccountType(shareAccountType)
		if act != "" && !act.Valid() {
			return fmt.Errorf("unknown account type %q", shareAccountType)
		}
		token, err := creds.CreateDisclosureRequest(cmd.Context(), credentials.DisclosureRequestParams{
			Requested:     shareRequested,
			Verified:      shareVerified,
			Callback:      reqCallback,
			NetworkID:     reqNetwork,
			AccountType:   act,
			Notifications: shareNotifications,
			Extras:        requestExtras(),
			ExpiresIn:     reqExpires,
		})
		if err != nil {
			return err
		}
		return printRequest(token)
	},
}

var requestPersonalSignCmd = &cobra.Command{
	Use:   "personal-sign",
	Short: "Ask a wallet to sign a message",
	RunE: func(cmd *cobra.Command, _ []string) error {
		creds, err := newCredentials(reqKey, reqIssuer)
		if err != nil {
			return err
		}
		token, err := creds.CreatePersonalSignRequest(cmd.Context(), credentials.PersonalSignRequestParams{
			Data:      signData,
			Callback:  reqCallback,
			Riss:      signRiss,
			From:      signFrom,
			NetworkID: reqNetwork,
			Extras:    requestExtras(),
			ExpiresIn: reqExpires,
		})
		if err != nil {
			return err
		}
		return printRequest(token)
	},
}

var requestVerifiedClaimCmd = &cobra.Command{
	Use:   "verified-claim",
	Short: "Ask a wallet to sign a claim about a subject",
	RunE: func(cmd *cobra.Command, _ []string) error {
		creds, err := newCredentials(reqKey, reqIssuer)
		if err != nil {
			return err
		}
		claim, err := parseClaims(claimJSON)
		if err != nil {
			return err
		}
		params := credentials.VerifiedClaimRequestParams{
			UnsignedClaim: claim,
			Callback:      reqCallback,
			Riss:          claimRiss,
			Aud:           claimAud,
			Sub:           claimSub,
			Extras:        requestExtras(),
			ExpiresIn:     reqExpires,
		}
		if claimApp != "" {
			params.IssuerClaims = jwt.NewClaims().Set("dappName", jwt.String(claimApp))
		}
		if claimExpiry > 0 {
			params.RequestedExpiry = time.Now().Add(claimExpiry).Unix()
		}
		token, err := creds.CreateVerifiedClaimRequest(cmd.Context(), params)
		if err != nil {
			return err
		}
		return printRequest(token)
	},
}

func requestExtras() *jwt.Claims {
	return jwt.NewClaims().Set("jti", jwt.String(uuid.NewString()))
}

// printRequest prints the token, or a wallet deep link when --url is set.
func printRequest(token string) error {
	if reqURL == "" {
		fmt.Println(token)
		return nil
	}
	sep := "?"
	if strings.Contains(reqURL, "?") {
		sep = "&"
	}
	fmt.Println(reqURL + sep + "requestToken=" + url.QueryEscape(token))
	return nil
}

func init() {
	rootCmd.AddCommand(requestCmd)
	requestCmd.AddCommand(requestShareCmd, requestPersonalSignCmd, requestVerifiedClaimCmd)

	requestCmd.PersistentFlags().StringVar(&reqKey, "key", "", "Private key hex (or "+EnvPrivateKey+")")
	requestCmd.PersistentFlags().StringVar(&reqIssuer, "iss", "", "Requesting identity (defaults to the key's address)")
	requestCmd.PersistentFlags().StringVar(&reqCallback, "callback", "", "Where the wallet sends its response")
	requestCmd.PersistentFlags().StringVar(&reqNetwork, "net", "", "0x network id for the response")
	requestCmd.PersistentFlags().DurationVar(&reqExpires, "expires", credentials.DefaultValidity, "Request lifetime")
	requestCmd.PersistentFlags().StringVar(&reqURL, "url", "", "Wrap the token in this wallet URL, e.g. https://id.uport.me/req")

	requestShareCmd.Flags().StringSliceVar(&shareRequested, "requested", nil, "Self-asserted fields to request")
	requestShareCmd.Flags().StringSliceVar(&shareVerified, "verified", nil, "Attested fields to request")
	requestShareCmd.Flags().StringVar(&shareAccountType, "act", "", "Account type: general, segregated, keypair or none")
	requestShareCmd.Flags().BoolVar(&shareNotifications, "notifications", false, "Ask for push notification permission")

	requestPersonalSignCmd.Flags().StringVar(&signData, "data", "", "Message to sign")
	requestPersonalSignCmd.Flags().StringVar(&signFrom, "from", "", "Address expected to sign")
	requestPersonalSignCmd.Flags().StringVar(&signRiss, "riss", "", "Identity expected to sign")
	_ = requestPersonalSignCmd.MarkFlagRequired("data")

	requestVerifiedClaimCmd.Flags().StringVar(&claimJSON, "claim", "", "Unsigned claim as a JSON object")
	requestVerifiedClaimCmd.Flags().StringVar(&claimRiss, "riss", "", "Identity asked to sign the claim")
	requestVerifiedClaimCmd.Flags().StringVar(&claimAud, "aud", "", "Audience of the signed claim")
	requestVerifiedClaimCmd.Flags().StringVar(&claimSub, "sub", "", "Subject of the signed claim")
	requestVerifiedClaimCmd.Flags().StringVar(&claimApp, "app-name", "", "Requesting app name (issc.dappName)")
	requestVerifiedClaimCmd.Flags().DurationVar(&claimExpiry, "claim-expires", 0, "Requested lifetime of the signed claim")
	_ = requestVerifiedClaimCmd.MarkFlagRequired("claim")
}
