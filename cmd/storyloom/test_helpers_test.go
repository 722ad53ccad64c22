package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"storyloom/internal/storyapi"
)

type cliTestEnv struct {
	service    *fakeGenerationServer
	configPath string
	dataDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	service := newFakeGenerationServer(t)

	dataDir := filepath.Join(base, "data")
	logDir := filepath.Join(base, "logs")
	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, service.URL(), dataDir, logDir)

	return &cliTestEnv{
		service:    service,
		configPath: configPath,
		dataDir:    dataDir,
	}
}

func writeTestConfig(t *testing.T, path, baseURL, dataDir, logDir string) {
	t.Helper()
	content := fmt.Sprintf(`[service]
base_url = %q
api_key = "test"

[tracker]
poll_interval = 1
stall_threshold = 5

[paths]
data_dir = %q
log_dir = %q

[logging]
format = "json"
level = "error"
`, baseURL, dataDir, logDir)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

// fakeGenerationServer emulates the remote generation service over HTTP with
// a scripted sequence of status responses per job.
type fakeGenerationServer struct {
	t      *testing.T
	server *httptest.Server

	mu           sync.Mutex
	nextJobID    string
	createStatus int
	conflictWith string
	statuses     []storyapi.JobStatus
	statusIdx    int
	cancelled    []string
	created      []storyapi.Request
}

func newFakeGenerationServer(t *testing.T) *fakeGenerationServer {
	t.Helper()
	f := &fakeGenerationServer{
		t:            t,
		nextJobID:    "job-cli",
		createStatus: http.StatusCreated,
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeGenerationServer) URL() string { return f.server.URL }

func (f *fakeGenerationServer) scriptStatuses(statuses ...storyapi.JobStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = statuses
	f.statusIdx = 0
}

func (f *fakeGenerationServer) conflict(existingJobID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createStatus = http.StatusConflict
	f.conflictWith = existingJobID
}

func (f *fakeGenerationServer) createdRequests() []storyapi.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]storyapi.Request, len(f.created))
	copy(out, f.created)
	return out
}

func (f *fakeGenerationServer) cancelledJobs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.cancelled))
	copy(out, f.cancelled)
	return out
}

func (f *fakeGenerationServer) handle(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, "/v1/jobs") {
		http.NotFound(w, r)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodPost:
		var req storyapi.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			f.t.Errorf("decode create request: %v", err)
		}
		f.created = append(f.created, req)
		if f.createStatus == http.StatusConflict {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			fmt.Fprintf(w, `{"error":{"code":"job_already_active","message":"a job is already active","jobId":%q}}`, f.conflictWith)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.createStatus)
		fmt.Fprintf(w, `{"jobId":%q,"creditsRemaining":9}`, f.nextJobID)
	case http.MethodGet:
		if len(f.statuses) == 0 {
			http.Error(w, "no scripted status", http.StatusInternalServerError)
			return
		}
		idx := f.statusIdx
		if idx >= len(f.statuses) {
			idx = len(f.statuses) - 1
		} else {
			f.statusIdx++
		}
		status := f.statuses[idx]
		if status.JobID == "" {
			status.JobID = strings.TrimPrefix(r.URL.Path, "/v1/jobs/")
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(status); err != nil {
			f.t.Errorf("encode status: %v", err)
		}
	case http.MethodDelete:
		f.cancelled = append(f.cancelled, strings.TrimPrefix(r.URL.Path, "/v1/jobs/"))
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "unsupported", http.StatusMethodNotAllowed)
	}
}
