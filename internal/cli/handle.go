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

// handleCmd represents the handle command
var handleCmd = &cobra.Command{
	Use:   "handle",
	Short: "Resolve WebAuthn user handles",
	Long: `Commands for resolving the opaque WebAuthn user handles the relying
party hands to authenticators.

Handles are random and never derived from account data; these commands
are the only way to map between a handle seen in a ceremony and the
application user it belongs to.`,
}

// handleShowCmd resolves a user ID to its handle
var handleShowCmd = &cobra.Command{
	Use:   "show <user-id>",
	Short: "Show the user handle for an application user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		printer := NewPrinter(getConfig().OutputFormat, os.Stdout)
		return runHandleShow(cmd.Context(), getConfig(), printer, args[0])
	},
}

// handleResolveCmd resolves a handle back to its user
var handleResolveCmd = &cobra.Command{
	Use:   "resolve <handle>",
	Short: "Resolve a base64url user handle to an application user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		printer := NewPrinter(getConfig().OutputFormat, os.Stdout)
		return runHandleResolve(cmd.Context(), getConfig(), printer, args[0])
	},
}

func init() {
	handleCmd.AddCommand(handleShowCmd)
	handleCmd.AddCommand(handleResolveCmd)
}

func runHandleShow(ctx context.Context, cfg *Config, printer *Printer, userID string) error {
	store, err := cfg.OpenStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	// HandleFor mints a handle when none exists yet, same as the server
	// does at the start of a registration ceremony.
	handle, err := store.HandleFor(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to resolve handle: %w", err)
	}
	return printer.PrintHandle(userID, handle)
}

func runHandleResolve(ctx context.Context, cfg *Config, printer *Printer, encoded string) error {
	handle, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("invalid handle %q: %w", encoded, err)
	}

	store, err := cfg.OpenStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	userID, err := store.UserFor(ctx, handle)
	if err != nil {
		return err
	}
	return printer.PrintHandle(userID, handle)
}
