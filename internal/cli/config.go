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
	"fmt"
	"os"

	"github.com/jeremyhahn/go-passkey/pkg/storage/sqlite"
)

// Config holds global CLI configuration
type Config struct {
	// DBPath is the path to the SQLite credential database
	DBPath string

	// OutputFormat controls output formatting (json, text, table)
	OutputFormat string

	// Verbose enables verbose logging
	Verbose bool
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		DBPath:       defaultDBPath(),
		OutputFormat: "text",
	}
}

// OpenStore opens the SQLite credential store at the configured path. The
// database must already exist; the CLI never creates a store the server has
// not initialized.
func (c *Config) OpenStore() (*sqlite.Store, error) {
	if c.DBPath == "" {
		return nil, fmt.Errorf("database path is required (--db)")
	}
	if _, err := os.Stat(c.DBPath); err != nil {
		return nil, fmt.Errorf("credential database %s: %w", c.DBPath, err)
	}
	return sqlite.Open(c.DBPath)
}

// defaultDBPath resolves the database path from the environment, falling
// back to the server's default location.
func defaultDBPath() string {
	if path := os.Getenv("PASSKEY_STORAGE_PATH"); path != "" {
		return path
	}
	return "/var/lib/passkey/passkey.db"
}
