// Package scraper fetches one Mastodon instance or account per call.
//
// FetchInstance and FetchAccount issue exactly one GET each and never retry.
// They do not return errors; every failure is carried in the result's Err
// field and classified by Outcome, so the collector can keep going with the
// remaining targets. The rate-limit headers are read before the status code
// is inspected because Mastodon sends them on error responses too.
//
// The shared *http.Client is built once in New with a bounded timeout, so a
// hanging instance can only stall a collection cycle for that long.
package scraper
