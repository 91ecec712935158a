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
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jeremyhahn/go-passkey/pkg/webauthn"
)

// OutputFormat defines the output format type
type OutputFormat string

const (
	OutputFormatText  OutputFormat = "text"
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatTable OutputFormat = "table"
)

// Printer handles formatted output
type Printer struct {
	format OutputFormat
	writer io.Writer
}

// NewPrinter creates a new Printer
func NewPrinter(format string, writer io.Writer) *Printer {
	return &Printer{
		format: OutputFormat(format),
		writer: writer,
	}
}

// credentialID renders a credential ID the way the wire format does.
func credentialID(cred *webauthn.Credential) string {
	return base64.RawURLEncoding.EncodeToString(cred.ID)
}

// PrintCredentialList prints a user's registered credentials
func (p *Printer) PrintCredentialList(userID string, creds []*webauthn.Credential) error {
	switch p.format {
	case OutputFormatJSON:
		list := make([]map[string]interface{}, len(creds))
		for i, cred := range creds {
			list[i] = credentialJSON(cred)
		}
		return p.printJSON(map[string]interface{}{
			"user_id":     userID,
			"credentials": list,
		})
	case OutputFormatTable:
		if len(creds) == 0 {
			fmt.Fprintln(p.writer, "No credentials found")
			return nil
		}
		fmt.Fprintf(p.writer, "%-45s %-20s %-10s %-10s %-25s\n", "CREDENTIAL ID", "LABEL", "DISABLED", "SIGNCOUNT", "CREATED")
		fmt.Fprintln(p.writer, strings.Repeat("-", 112))
		for _, cred := range creds {
			fmt.Fprintf(p.writer, "%-45s %-20s %-10t %-10d %-25s\n",
				credentialID(cred), cred.Label, cred.Disabled, cred.SignCount,
				cred.CreatedAt.Format(time.RFC3339))
		}
		return nil
	case OutputFormatText:
		if len(creds) == 0 {
			fmt.Fprintln(p.writer, "No credentials found")
			return nil
		}
		fmt.Fprintf(p.writer, "Credentials for %s:\n", userID)
		for _, cred := range creds {
			state := ""
			if cred.Disabled {
				state = " [disabled]"
			}
			fmt.Fprintf(p.writer, "  - %s (%s)%s\n", credentialID(cred), cred.Label, state)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintCredentialInfo prints detailed credential information
func (p *Printer) PrintCredentialInfo(cred *webauthn.Credential) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(credentialJSON(cred))
	case OutputFormatTable, OutputFormatText:
		fmt.Fprintf(p.writer, "Credential Information:\n")
		fmt.Fprintf(p.writer, "  ID:              %s\n", credentialID(cred))
		fmt.Fprintf(p.writer, "  User:            %s\n", cred.UserID)
		fmt.Fprintf(p.writer, "  Label:           %s\n", cred.Label)
		fmt.Fprintf(p.writer, "  Algorithm:       %d\n", cred.Algorithm)
		fmt.Fprintf(p.writer, "  Sign Count:      %d\n", cred.SignCount)
		fmt.Fprintf(p.writer, "  Disabled:        %t\n", cred.Disabled)
		fmt.Fprintf(p.writer, "  Backup Eligible: %t\n", cred.BackupEligible)
		fmt.Fprintf(p.writer, "  Backed Up:       %t\n", cred.BackupState)
		fmt.Fprintf(p.writer, "  Created:         %s\n", cred.CreatedAt.Format(time.RFC3339))
		if !cred.LastUsedAt.IsZero() {
			fmt.Fprintf(p.writer, "  Last Used:       %s\n", cred.LastUsedAt.Format(time.RFC3339))
		}
		if len(cred.Transports) > 0 {
			transports := make([]string, len(cred.Transports))
			for i, t := range cred.Transports {
				transports[i] = string(t)
			}
			fmt.Fprintf(p.writer, "  Transports:      %s\n", strings.Join(transports, ", "))
		}
		if cred.Attestation.Format != "" {
			fmt.Fprintf(p.writer, "  Attestation:     %s\n", cred.Attestation.Format)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintHandle prints a WebAuthn user handle
func (p *Printer) PrintHandle(userID string, handle []byte) error {
	encoded := base64.RawURLEncoding.EncodeToString(handle)
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"user_id": userID,
			"handle":  encoded,
		})
	case OutputFormatTable, OutputFormatText:
		fmt.Fprintf(p.writer, "User:   %s\n", userID)
		fmt.Fprintf(p.writer, "Handle: %s\n", encoded)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintSuccess prints a success message
func (p *Printer) PrintSuccess(message string) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"status":  "success",
			"message": message,
		})
	case OutputFormatTable, OutputFormatText:
		fmt.Fprintln(p.writer, message)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintError prints an error message
func (p *Printer) PrintError(err error) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"status": "error",
			"error":  err.Error(),
		})
	case OutputFormatTable, OutputFormatText:
		fmt.Fprintf(p.writer, "Error: %v\n", err)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// credentialJSON flattens a credential for machine-readable output.
func credentialJSON(cred *webauthn.Credential) map[string]interface{} {
	info := map[string]interface{}{
		"credential_id":   credentialID(cred),
		"user_id":         cred.UserID,
		"label":           cred.Label,
		"algorithm":       cred.Algorithm,
		"sign_count":      cred.SignCount,
		"disabled":        cred.Disabled,
		"backup_eligible": cred.BackupEligible,
		"backup_state":    cred.BackupState,
		"created_at":      cred.CreatedAt.Format(time.RFC3339),
	}
	if !cred.LastUsedAt.IsZero() {
		info["last_used_at"] = cred.LastUsedAt.Format(time.RFC3339)
	}
	if len(cred.Transports) > 0 {
		transports := make([]string, len(cred.Transports))
		for i, t := range cred.Transports {
			transports[i] = string(t)
		}
		info["transports"] = transports
	}
	return info
}

// printJSON prints data as JSON
func (p *Printer) printJSON(data interface{}) error {
	encoder := json.NewEncoder(p.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
