// Package tracker supervises one in-flight generation job.
//
// The Tracker owns the poll loop lifecycle: it creates or re-attaches to a
// job, queries the remote service on a fixed interval, and folds every
// response into accumulated state through the story.Merge reducer. Transient
// poll failures are tolerated up to a configured consecutive bound; only an
// explicit terminal status, that bound, or cancellation halt the loop.
//
// Terminal statuses pass through a per-handle completion gate so the final
// materialization (full story, images, credits, cleared session record, the
// one-shot Outcome) happens exactly once even when an original poller and a
// resumed one both observe the same terminal response. A stall detector
// raises an advisory flag when progress sits flat past the configured
// threshold without ever halting polling.
package tracker
