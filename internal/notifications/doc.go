// Package notifications delivers tracker events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when no topic is set.
// Per-event toggles let users silence completion, failure, or stall pushes
// independently.
//
// Extend this package if you need alternative transports; tracker code
// depends only on the simple Service interface.
package notifications
