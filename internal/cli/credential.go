// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cli

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// credentialCmd represents the credential command
var credentialCmd = &cobra.Command{
	Use:     "credential",
	Aliases: []string{"credentials", "cred"},
	Short:   "Manage registered passkey credentials",
	Long: `Commands for inspecting and administering the credentials users have
registered with this relying party.

Credential IDs are base64url-encoded, exactly as they appear on the
wire and in server logs.`,
}

// credentialListCmd lists a user's credentials
var credentialListCmd = &cobra.Command{
	Use:   "list <user-id>",
	Short: "List a user's registered credentials",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		printer := NewPrinter(getConfig().OutputFormat, os.Stdout)
		return runCredentialList(cmd.Context(), getConfig(), printer, args[0])
	},
}

// credentialInfoCmd shows one credential in detail
var credentialInfoCmd = &cobra.Command{
	Use:   "info <credential-id>",
	Short: "Show detailed credential information",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		printer := NewPrinter(getConfig().OutputFormat, os.Stdout)
		return runCredentialInfo(cmd.Context(), getConfig(), printer, args[0])
	},
}

// credentialDisableCmd blocks a credential from authenticating
var credentialDisableCmd = &cobra.Command{
	Use:   "disable <credential-id>",
	Short: "Disable a credential",
	Long: `Disable a credential so it can no longer complete authentication.

The credential record is retained, so the action is reversible with
'credential enable'. Use this for suspected clones or lost devices when
the user may still recover them.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		printer := NewPrinter(getConfig().OutputFormat, os.Stdout)
		return runCredentialSetDisabled(cmd.Context(), getConfig(), printer, args[0], true)
	},
}

// credentialEnableCmd re-enables a disabled credential
var credentialEnableCmd = &cobra.Command{
	Use:   "enable <credential-id>",
	Short: "Re-enable a disabled credential",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		printer := NewPrinter(getConfig().OutputFormat, os.Stdout)
		return runCredentialSetDisabled(cmd.Context(), getConfig(), printer, args[0], false)
	},
}

// credentialDeleteCmd permanently removes a credential
var credentialDeleteCmd = &cobra.Command{
	Use:   "delete <credential-id>",
	Short: "Permanently delete a credential",
	Long: `Permanently delete a credential from the store.

Deletion cannot be undone; the user must register the authenticator
again. Prefer 'credential disable' when the situation may resolve.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		printer := NewPrinter(getConfig().OutputFormat, os.Stdout)
		return runCredentialDelete(cmd.Context(), getConfig(), printer, args[0])
	},
}

func init() {
	credentialCmd.AddCommand(credentialListCmd)
	credentialCmd.AddCommand(credentialInfoCmd)
	credentialCmd.AddCommand(credentialDisableCmd)
	credentialCmd.AddCommand(credentialEnableCmd)
	credentialCmd.AddCommand(credentialDeleteCmd)
}

func runCredentialList(ctx context.Context, cfg *Config, printer *Printer, userID string) error {
	store, err := cfg.OpenStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	creds, err := store.FindAllByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to list credentials: %w", err)
	}
	return printer.PrintCredentialList(userID, creds)
}

func runCredentialInfo(ctx context.Context, cfg *Config, printer *Printer, encodedID string) error {
	credentialID, err := decodeCredentialID(encodedID)
	if err != nil {
		return err
	}

	store, err := cfg.OpenStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	cred, err := store.FindByCredentialID(ctx, credentialID)
	if err != nil {
		return err
	}
	return printer.PrintCredentialInfo(cred)
}

func runCredentialSetDisabled(ctx context.Context, cfg *Config, printer *Printer, encodedID string, disabled bool) error {
	credentialID, err := decodeCredentialID(encodedID)
	if err != nil {
		return err
	}

	store, err := cfg.OpenStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.SetDisabled(ctx, credentialID, disabled); err != nil {
		return err
	}

	if disabled {
		return printer.PrintSuccess(fmt.Sprintf("Credential %s disabled", encodedID))
	}
	return printer.PrintSuccess(fmt.Sprintf("Credential %s enabled", encodedID))
}

func runCredentialDelete(ctx context.Context, cfg *Config, printer *Printer, encodedID string) error {
	credentialID, err := decodeCredentialID(encodedID)
	if err != nil {
		return err
	}

	store, err := cfg.OpenStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.Delete(ctx, credentialID); err != nil {
		return err
	}
	return printer.PrintSuccess(fmt.Sprintf("Credential %s deleted", encodedID))
}

// decodeCredentialID parses a base64url credential ID argument.
func decodeCredentialID(encoded string) ([]byte, error) {
	credentialID, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid credential id %q: %w", encoded, err)
	}
	return credentialID, nil
}
