// Package db provides the embedded schema and seed catalog.
package db

import _ "embed"

// Schema contains the DDL statements for all application tables. Every
// statement is idempotent.
//
//go:embed migrations/001_schema.sql
var Schema string

// Catalog is the demo data loaded by seed-db.
//
//go:embed seed/catalog.json
var Catalog []byte
