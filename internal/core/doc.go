// Package core runs CSV imports for a set of registered tables.
//
// It sits between the transports (HTTP handlers, the CLI) and the typed
// importer pipeline, and holds no transport-specific code.
//
// # Table Registry
//
// Tables are registered at init time. [Define] turns a typed row model,
// entity and destination table into a [TableDefinition]:
//
//	core.Register(core.Define(
//	    core.TableInfo{Key: "products", Group: "Catalog", Label: "Products"},
//	    core.TableSpec[ProductRow, Product]{Table: productsTable},
//	))
//
// # Imports
//
// [Service.Import] takes a slot from the [ImportLimiter], applies the
// import timeout and runs a fresh store and pipeline for the call. Row
// problems are returned in the outcome; fatal problems are returned as
// errors and leave nothing persisted.
//
// # Error Handling
//
// [MapError] turns fatal errors into user-facing messages with a support
// code (DB*, FILE*, IMP*, TBL*, RATE*, REQ*, ERR000).
package core
