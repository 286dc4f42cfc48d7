// Package crawler walks the catalog identifier space, fetching and
// collecting item pages one at a time.
package crawler
