// Package services provides shared error classification and context
// annotation used across storyloom components.
//
// Remote-call failures are wrapped with a sentinel marker before they
// cross into tracking or display code, so callers can branch on the
// category (transient, conflict, terminal) without inspecting raw
// transport errors. The context helpers carry the job handle and the
// request correlation identifier so loggers can tag every line emitted
// while supervising a job.
package services
