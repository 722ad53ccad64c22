// Package session persists the tracked-job record that lets a later
// storyloom invocation rediscover and re-attach to a generation job that is
// still running remotely.
//
// The store is a SQLite-backed single slot per session key: at most one
// active job may be tracked per session. It is the source of truth for "is a
// job running and which one", not a cache. A flock-based lock file guards
// each session key so only one tracker supervises a job at a time.
package session
