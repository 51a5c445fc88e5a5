// Package tables registers the importable tables with the core registry.
// Import it for side effects:
//
//	import _ "github.com/JonMunkholm/csvimport/internal/core/tables"
package tables
