// Package mastodon decodes the two Mastodon REST responses the exporter
// reads and the rate-limit headers attached to them.
//
// Decoding is tolerant of extra fields but strict about the fields the
// exporter publishes: a missing required field yields ErrDecode instead of a
// zero value, so a truncated or foreign document never overwrites good data.
//
// Entities:
//   - InstanceInfo: GET /api/v2/instance
//     (https://docs.joinmastodon.org/entities/Instance/)
//   - AccountInfo: GET /api/v1/accounts/:id
//     (https://docs.joinmastodon.org/entities/Account/)
//   - RateLimit: x-ratelimit-remaining / x-ratelimit-reset
package mastodon
