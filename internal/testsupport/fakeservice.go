package testsupport

import (
	"context"
	"sync"

	"storyloom/internal/services"
	"storyloom/internal/storyapi"
)

// PollStep is one scripted poll outcome. Exactly one of Status or Err should
// be set; a nil Status with a nil Err replays the previous step. A non-nil
// Gate holds the response in flight until the channel closes or the poll
// context ends; either way the step's outcome is still returned, like a
// reply that was already on the wire when the caller gave up.
type PollStep struct {
	Status *storyapi.JobStatus
	Err    error
	Gate   <-chan struct{}
}

// FakeService implements storyapi.Caller from a scripted sequence of poll
// responses. Once the script is exhausted the final step repeats.
type FakeService struct {
	mu       sync.Mutex
	created  []storyapi.Request
	canceled []string
	steps    []PollStep
	next     int

	CreateResult *storyapi.CreatedJob
	CreateErr    error
	CancelErr    error
}

// NewFakeService returns a fake whose CreateJob yields the given job ID.
func NewFakeService(jobID string, steps ...PollStep) *FakeService {
	return &FakeService{
		CreateResult: &storyapi.CreatedJob{JobID: jobID, CreditsRemaining: 10},
		steps:        steps,
	}
}

// Script replaces the remaining poll steps.
func (f *FakeService) Script(steps ...PollStep) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.steps = steps
	f.next = 0
}

// CreateJob records the request and returns the configured result.
func (f *FakeService) CreateJob(ctx context.Context, req storyapi.Request) (*storyapi.CreatedJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, req)
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	if f.CreateResult == nil {
		return nil, services.Wrap(services.ErrTransient, "fakeservice", "CreateJob", "no create result configured", nil)
	}
	out := *f.CreateResult
	return &out, nil
}

// GetJobStatus pops the next scripted step. The last step repeats so pollers
// that outrun the script keep seeing a stable response.
func (f *FakeService) GetJobStatus(ctx context.Context, jobID string) (*storyapi.JobStatus, error) {
	f.mu.Lock()
	if len(f.steps) == 0 {
		f.mu.Unlock()
		return nil, services.Wrap(services.ErrTransient, "fakeservice", "GetJobStatus", "no poll steps scripted", nil)
	}
	idx := f.next
	if idx >= len(f.steps) {
		idx = len(f.steps) - 1
	} else {
		f.next++
	}
	step := f.steps[idx]
	f.mu.Unlock()

	if step.Gate != nil {
		select {
		case <-step.Gate:
		case <-ctx.Done():
		}
	}
	if step.Err != nil {
		return nil, step.Err
	}
	copied := *step.Status
	copied.JobID = jobID
	return &copied, nil
}

// CancelJob records the cancellation.
func (f *FakeService) CancelJob(ctx context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = append(f.canceled, jobID)
	return f.CancelErr
}

// CreatedRequests returns a copy of every request passed to CreateJob.
func (f *FakeService) CreatedRequests() []storyapi.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]storyapi.Request, len(f.created))
	copy(out, f.created)
	return out
}

// CanceledJobs returns a copy of every job ID passed to CancelJob.
func (f *FakeService) CanceledJobs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.canceled))
	copy(out, f.canceled)
	return out
}

// Polls reports how many scripted steps have been consumed.
func (f *FakeService) Polls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.next
}

// RunningStatus builds a non-terminal poll response with the given progress.
func RunningStatus(current int, message string) *storyapi.JobStatus {
	return &storyapi.JobStatus{
		Status: storyapi.StatusRunning,
		Progress: &storyapi.Progress{
			Current: current,
			Total:   100,
			Message: message,
		},
	}
}

// CompletedStatus builds a terminal success response around the given result.
func CompletedStatus(result *storyapi.JobResult) *storyapi.JobStatus {
	return &storyapi.JobStatus{
		Status: storyapi.StatusCompleted,
		Result: result,
	}
}

// FailedStatus builds a terminal failure response with the given message.
func FailedStatus(message string) *storyapi.JobStatus {
	return &storyapi.JobStatus{
		Status: storyapi.StatusFailed,
		Error:  message,
	}
}
