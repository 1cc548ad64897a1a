// Package db embeds the fulfillment database schema.
package db

import _ "embed"

// Schema holds the DDL for retailers, products, inventory, transactions,
// orders, and API keys. It is applied at startup by postgres.RunMigrations.
//
//go:embed migrations/001_schema.sql
var Schema string
