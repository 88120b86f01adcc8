// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer pure and free
// from ORM concerns.
//
// Key Principles:
// 1. Domain aggregates are rebuilt from their event streams, never from table rows
// 2. Persistence models contain all GORM annotations and table mappings
// 3. Head projections are rewritten from aggregate state on every save and exist
//    only to answer list and sweep queries
//
// Structure:
// - credit.go: the credit_events stream table, per-aggregate head projections,
//   collateral balances and the double-entry ledger journal
package models
