// Package db embeds the PostgreSQL schema applied at startup.
package db

import _ "embed"

// Schema is idempotent DDL for every table the postgres backend uses.
//
//go:embed migrations/001_schema.sql
var Schema string
