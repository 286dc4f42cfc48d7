// Package store tracks which catalog identifiers have been collected and
// where the crawl last left off. State lives on an afero filesystem so tests
// can run against memory.
package store
