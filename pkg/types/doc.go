// Package types defines the polling targets shared by the config loader,
// the scrapers and the collector. Values of these types are built once at
// startup and never mutated afterwards.
package types
