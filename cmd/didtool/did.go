package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/capiscio/didjwt/pkg/did"
	"github.com/capiscio/didjwt/pkg/registry"
)

var (
	didKey          string
	didTimeout      time.Duration
	didValidity     time.Duration
	didDelegateType string
	didWait         bool
)

var didCmd = &cobra.Command{
	Use:   "did",
	Short: "Normalize, resolve and update identities",
}

var didNormalizeCmd = &cobra.Command{
	Use:   "normalize <id>...",
	Short: "Print the canonical DID of addresses, MNIDs and DIDs",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		for _, id := range args {
			ident := did.Identify(id)
			fmt.Printf("%s\t%s\n", ident.DID, ident.KeyModel)
		}
		return nil
	},
}

var didResolveCmd = &cobra.Command{
	Use:   "resolve <did>",
	Short: "Resolve an identity's owner, delegates and public keys",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resolver, err := newResolver()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), didTimeout)
		defer cancel()

		doc, err := resolver.Resolve(ctx, args[0])
		if err != nil {
			return err
		}
		keys := make([]string, 0, len(doc.PublicKeys))
		for _, k := range doc.PublicKeys {
			keys = append(keys, k.Hex())
		}
		return printJSON(map[string]interface{}{
			"id":         doc.ID,
			"owner":      doc.Owner,
			"delegates":  doc.Delegates,
			"publicKeys": keys,
		})
	},
}

var didOwnerCmd = &cobra.Command{
	Use:   "owner <did>",
	Short: "Print the current owner address of an identity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := newRegistry()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), didTimeout)
		defer cancel()

		owner, err := reg.LookupOwner(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Println(owner)
		return nil
	},
}

// writeCommand runs one signed registry mutation and optionally waits for
// the transaction to be mined.
func writeCommand(cmd *cobra.Command, id string, send func(ctx context.Context, reg *registry.Resolver) (string, error)) error {
	reg, err := newRegistry()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), didTimeout)
	defer cancel()

	txHash, err := send(ctx, reg)
	if err != nil {
		return err
	}
	fmt.Println(txHash)
	if !didWait {
		return nil
	}

	parsed, err := did.Parse(id)
	if err != nil {
		return err
	}
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		mined, err := reg.CheckReceipt(ctx, parsed.Network, txHash)
		if err != nil {
			return err
		}
		if mined {
			logger.Info().Str("tx", txHash).Msg("transaction mined")
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

var didChangeOwnerCmd = &cobra.Command{
	Use:   "change-owner <did> <new-owner>",
	Short: "Transfer an identity to a new owner address",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		signer, err := loadSigner(didKey)
		if err != nil {
			return err
		}
		return writeCommand(cmd, args[0], func(ctx context.Context, reg *registry.Resolver) (string, error) {
			return reg.ChangeOwner(ctx, args[0], args[1], signer)
		})
	},
}

var didAddDelegateCmd = &cobra.Command{
	Use:   "add-delegate <did> <delegate>",
	Short: "Authorize a delegate address for a limited time",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		signer, err := loadSigner(didKey)
		if err != nil {
			return err
		}
		return writeCommand(cmd, args[0], func(ctx context.Context, reg *registry.Resolver) (string, error) {
			return reg.AddDelegate(ctx, args[0], didDelegateType, args[1], uint64(didValidity/time.Second), signer)
		})
	},
}

var didRevokeDelegateCmd = &cobra.Command{
	Use:   "revoke-delegate <did> <delegate>",
	Short: "Revoke a delegate address",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		signer, err := loadSigner(didKey)
		if err != nil {
			return err
		}
		return writeCommand(cmd, args[0], func(ctx context.Context, reg *registry.Resolver) (string, error) {
			return reg.RevokeDelegate(ctx, args[0], didDelegateType, args[1], signer)
		})
	},
}

var didSetAttributeCmd = &cobra.Command{
	Use:   "set-attribute <did> <name> <value>",
	Short: "Publish an attribute, e.g. did/pub/Secp256k1/veriKey/hex",
	Long: `Publish an attribute on the registry. Values starting with 0x are
sent as raw bytes, anything else as UTF-8 text.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		signer, err := loadSigner(didKey)
		if err != nil {
			return err
		}
		value, err := attributeValue(args[2])
		if err != nil {
			return err
		}
		return writeCommand(cmd, args[0], func(ctx context.Context, reg *registry.Resolver) (string, error) {
			return reg.SetAttribute(ctx, args[0], args[1], value, uint64(didValidity/time.Second), signer)
		})
	},
}

var didRevokeAttributeCmd = &cobra.Command{
	Use:   "revoke-attribute <did> <name> <value>",
	Short: "Revoke a published attribute",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		signer, err := loadSigner(didKey)
		if err != nil {
			return err
		}
		value, err := attributeValue(args[2])
		if err != nil {
			return err
		}
		return writeCommand(cmd, args[0], func(ctx context.Context, reg *registry.Resolver) (string, error) {
			return reg.RevokeAttribute(ctx, args[0], args[1], value, signer)
		})
	},
}

func attributeValue(s string) ([]byte, error) {
	if strings.HasPrefix(s, "0x") {
		b, err := hex.DecodeString(s[2:])
		if err != nil {
			return nil, fmt.Errorf("invalid hex value: %w", err)
		}
		return b, nil
	}
	return []byte(s), nil
}

func init() {
	rootCmd.AddCommand(didCmd)
	didCmd.AddCommand(didNormalizeCmd, didResolveCmd, didOwnerCmd,
		didChangeOwnerCmd, didAddDelegateCmd, didRevokeDelegateCmd,
		didSetAttributeCmd, didRevokeAttributeCmd)

	didCmd.PersistentFlags().DurationVar(&didTimeout, "timeout", 30*time.Second, "Network timeout")
	for _, c := range []*cobra.Command{didChangeOwnerCmd, didAddDelegateCmd, didRevokeDelegateCmd, didSetAttributeCmd, didRevokeAttributeCmd} {
		c.Flags().StringVar(&didKey, "key", "", "Owner private key hex (or "+EnvPrivateKey+")")
		c.Flags().BoolVar(&didWait, "wait", false, "Wait until the transaction is mined")
	}
	for _, c := range []*cobra.Command{didAddDelegateCmd, didRevokeDelegateCmd} {
		c.Flags().StringVar(&didDelegateType, "type", registry.DelegateVerificationKey, "Delegate type (veriKey or sigAuth)")
	}
	for _, c := range []*cobra.Command{didAddDelegateCmd, didSetAttributeCmd} {
		c.Flags().DurationVar(&didValidity, "validity", 24*time.Hour, "How long the entry stays valid")
	}
}
