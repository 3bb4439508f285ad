// Package collector runs one collection cycle: it fetches every configured
// instance and account concurrently, waits for all of them, and writes the
// successful results into the metrics registry.
//
// A cycle is join-all, not fail-fast. Each target ends in exactly one
// scraper.Outcome; failures are logged and skipped and never cancel or fail
// their siblings. Values of a failed target from earlier cycles stay in the
// registry untouched.
package collector
