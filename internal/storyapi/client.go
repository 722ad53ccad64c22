package storyapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"storyloom/internal/services"
)

// Caller is the operation surface the tracker depends on.
type Caller interface {
	CreateJob(ctx context.Context, req Request) (*CreatedJob, error)
	GetJobStatus(ctx context.Context, jobID string) (*JobStatus, error)
	CancelJob(ctx context.Context, jobID string) error
}

// Client provides access to the story generation service API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ Caller = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// New creates a generation service client.
func New(baseURL, apiKey string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("service base url required")
	}
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("service api key required")
	}
	client := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// CreateJob submits a generation request. A 409 response decodes into
// *ConflictError carrying the already-active job's handle.
func (c *Client) CreateJob(ctx context.Context, jobReq Request) (*CreatedJob, error) {
	if strings.TrimSpace(jobReq.Title) == "" {
		return nil, services.Wrap(services.ErrValidation, "storyapi", "CreateJob", "title must not be empty", nil)
	}
	if strings.TrimSpace(jobReq.ChildName) == "" {
		return nil, services.Wrap(services.ErrValidation, "storyapi", "CreateJob", "child name must not be empty", nil)
	}

	body, err := json.Marshal(jobReq)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/jobs", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.decorate(ctx, req)

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "storyapi", "CreateJob", fmt.Sprintf("execute request (latency=%v)", latency), err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
	case http.StatusConflict:
		return nil, decodeConflict(resp.Body)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return nil, services.Wrap(services.ErrValidation, "storyapi", "CreateJob", readServiceMessage(resp.Body), nil)
	default:
		return nil, fmt.Errorf("create job returned %d (latency=%v)", resp.StatusCode, latency)
	}

	var payload CreatedJob
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode create response: %w", err)
	}
	if payload.JobID == "" {
		return nil, errors.New("create response missing job id")
	}
	return &payload, nil
}

// GetJobStatus fetches the current state of a running or finished job.
func (c *Client) GetJobStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, errors.New("job id must not be empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/jobs/"+jobID, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	c.decorate(ctx, req)

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "storyapi", "GetJobStatus", fmt.Sprintf("execute request (latency=%v)", latency), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, services.Wrap(services.ErrTransient, "storyapi", "GetJobStatus", fmt.Sprintf("status query returned %d (latency=%v)", resp.StatusCode, latency), nil)
	}

	var payload JobStatus
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, services.Wrap(services.ErrTransient, "storyapi", "GetJobStatus", "decode status response", err)
	}
	if payload.JobID == "" {
		payload.JobID = jobID
	}
	return &payload, nil
}

// CancelJob asks the service to cancel a running job. A job the service no
// longer knows about is treated as already cancelled.
func (c *Client) CancelJob(ctx context.Context, jobID string) error {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return errors.New("job id must not be empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/v1/jobs/"+jobID, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	c.decorate(ctx, req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "storyapi", "CancelJob", "execute request", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusAccepted, http.StatusNotFound:
		return nil
	default:
		return fmt.Errorf("cancel job returned %d", resp.StatusCode)
	}
}

func (c *Client) decorate(ctx context.Context, req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	rid, ok := services.RequestIDFromContext(ctx)
	if !ok {
		rid = uuid.NewString()
	}
	req.Header.Set("X-Request-ID", rid)
}

func decodeConflict(body io.Reader) error {
	var payload serviceError
	if err := json.NewDecoder(body).Decode(&payload); err == nil && payload.Error.Code == codeJobAlreadyActive {
		return &ConflictError{ExistingJobID: payload.Error.JobID}
	}
	return &ConflictError{}
}

func readServiceMessage(body io.Reader) string {
	var payload serviceError
	if err := json.NewDecoder(body).Decode(&payload); err == nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	return "request rejected"
}
