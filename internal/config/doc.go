// Package config loads and watches the exporter configuration file
// (mastodon_exporter.yml).
//
// Top-level types:
//   - Config{Server, Scrape, InstanceInfo, Accounts}: full config tree
//   - Server: http_listen_port, http_listen_address, runtime_metrics
//   - ScrapeConfig: timeout, max_concurrency, scheme, user_agent,
//     insecure_skip_verify
//   - Account: one (instance, id) pair; accepts both the [instance, id]
//     sequence form and an {instance, id} mapping
//
// LoadOrCreate(path) writes Default() to path when no file exists, then calls
// Load. Load reads the YAML file, applies defaults (port 9498, 10s timeout),
// then validates ports, enums and targets. Targets() converts the lists into
// the immutable types.Targets value handed to the collector.
//
// Watch(ctx, path, onChange) uses fsnotify to report edits of the file. The
// exporter only logs them: targets are fixed for the process lifetime.
package config
