// Package storyapi is the HTTP client for the remote story generation
// service.
//
// The service runs an opaque multi-stage pipeline (outline, page text,
// scene descriptions, page images, cover images). This package exposes the
// three operations the tracker consumes - CreateJob, GetJobStatus, and
// CancelJob - plus the typed response model. A creation attempt while the
// account already has an active job surfaces as *ConflictError carrying the
// existing job's handle so the caller can choose to cancel-and-retry or
// attach.
package storyapi
