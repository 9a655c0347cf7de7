// Package main provides the entry point for the grantscan CLI.
//
// grantscan collects funding opportunities (grants, loans and development
// programs) from public portals, scores them for relevance to rural and
// indigenous community development in Peru, and keeps a ranked,
// deduplicated list in a local database or an Airtable base.
//
// Usage:
//
//	grantscan scan
//	grantscan scan --sources grants_gov,idb --markdown
//	grantscan history compare
//
// See --help for all available options.
package main

// main is the entry point for grantscan.
func main() {
	Execute()
}
