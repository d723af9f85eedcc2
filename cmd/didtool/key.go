package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/capiscio/didjwt/pkg/crypto"
	"github.com/capiscio/didjwt/pkg/did"
)

var (
	keyOutPrivate string
	keyJSON       bool
	keyNetwork    string
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage secp256k1 keys",
}

var keyGenCmd = &cobra.Command{
	Use:   "gen",
	Short: "Generate a new secp256k1 key pair",
	Long: `Generate a new secp256k1 key pair and print its identifiers.

The did:ethr identifier is the key's Ethereum address; the MNID encodes the
same address for the network given with --mnid-network.`,
	Example: `  # Generate a key and save the secret to a file
  didtool key gen --out-priv identity.key

  # Print everything as JSON
  didtool key gen --json`,
	RunE: func(_ *cobra.Command, _ []string) error {
		kp, err := crypto.GenerateKeyPair()
		if err != nil {
			return err
		}
		return printKey(kp)
	},
}

var keyShowCmd = &cobra.Command{
	Use:   "show <private-key-hex>",
	Short: "Print the identifiers of an existing key",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		keyHex := ""
		if len(args) == 1 {
			keyHex = args[0]
		}
		kp, err := loadSigner(keyHex)
		if err != nil {
			return err
		}
		keyOutPrivate = ""
		return printKey(kp)
	},
}

type keyOutput struct {
	Address   string `json:"address"`
	DID       string `json:"did"`
	MNID      string `json:"mnid,omitempty"`
	PublicKey string `json:"publicKey"`
	Private   string `json:"privateKey,omitempty"`
}

func printKey(kp *crypto.KeyPair) error {
	pub := kp.PublicKey()
	out := keyOutput{
		Address:   kp.Address(),
		DID:       did.NewEthrDID(pub.EthAddress()),
		PublicKey: pub.Hex(),
	}
	if keyNetwork != "" {
		mnid, err := did.EncodeMNID(keyNetwork, pub.EthAddress())
		if err != nil {
			return err
		}
		out.MNID = mnid
	}

	if keyOutPrivate != "" {
		if err := os.WriteFile(keyOutPrivate, []byte(kp.PrivateKeyHex()+"\n"), 0600); err != nil {
			return fmt.Errorf("failed to write private key: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Private key saved to %s\n", keyOutPrivate)
	} else if keyJSON {
		out.Private = kp.PrivateKeyHex()
	}

	if keyJSON {
		return printJSON(out)
	}
	fmt.Printf("Address:    %s\n", out.Address)
	fmt.Printf("DID:        %s\n", out.DID)
	if out.MNID != "" {
		fmt.Printf("MNID:       %s\n", out.MNID)
	}
	fmt.Printf("Public key: %s\n", out.PublicKey)
	if keyOutPrivate == "" {
		fmt.Printf("Private key: %s\n", kp.PrivateKeyHex())
	}
	return nil
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func init() {
	rootCmd.AddCommand(keyCmd)
	keyCmd.AddCommand(keyGenCmd)
	keyCmd.AddCommand(keyShowCmd)

	keyGenCmd.Flags().StringVar(&keyOutPrivate, "out-priv", "", "Write the private key hex to this file instead of stdout")
	keyCmd.PersistentFlags().BoolVar(&keyJSON, "json", false, "Print as JSON")
	keyCmd.PersistentFlags().StringVar(&keyNetwork, "mnid-network", "", "Also print the MNID for this 0x network id")
}
