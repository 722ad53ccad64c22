package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTransient marks failures that are retried on the next poll cycle.
	ErrTransient = errors.New("transient failure")
	// ErrConflict marks a creation attempt while another job is active.
	ErrConflict = errors.New("job conflict")
	// ErrValidation marks caller-supplied input the service rejected.
	ErrValidation = errors.New("validation error")
	// ErrConfiguration marks unusable local configuration.
	ErrConfiguration = errors.New("configuration error")
	// ErrTerminal marks a job the service reported as failed.
	ErrTerminal = errors.New("terminal failure")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsTransient reports whether the error should be absorbed by the poll loop
// rather than halting it.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
