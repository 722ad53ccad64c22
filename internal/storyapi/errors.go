package storyapi

import (
	"fmt"

	"storyloom/internal/services"
)

// ConflictError reports that the account already has an active generation
// job. The existing job's handle is extracted from the error payload so the
// caller can cancel-and-retry or attach to it.
type ConflictError struct {
	ExistingJobID string
}

func (e *ConflictError) Error() string {
	if e.ExistingJobID == "" {
		return "a generation job is already active for this account"
	}
	return fmt.Sprintf("a generation job is already active for this account (job %s)", e.ExistingJobID)
}

// Unwrap tags the error with the shared conflict marker.
func (e *ConflictError) Unwrap() error {
	return services.ErrConflict
}

// serviceError is the structured error body the service returns on non-2xx
// responses.
type serviceError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		JobID   string `json:"jobId,omitempty"`
	} `json:"error"`
}

const codeJobAlreadyActive = "job_already_active"
