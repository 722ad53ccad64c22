package tracker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"storyloom/internal/config"
	"storyloom/internal/logging"
	"storyloom/internal/services"
	"storyloom/internal/session"
	"storyloom/internal/story"
	"storyloom/internal/storyapi"
	"storyloom/internal/testsupport"
	"storyloom/internal/tracker"
)

func newTestTracker(t *testing.T, fake *testsupport.FakeService, opts ...tracker.Option) (*tracker.Tracker, *session.Store, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	base := []tracker.Option{tracker.WithPollInterval(5 * time.Millisecond)}
	base = append(base, opts...)
	tr := tracker.New(cfg, fake, store, nil, logging.NewNop(), base...)
	return tr, store, cfg
}

func waitOutcome(t *testing.T, tr *tracker.Tracker) tracker.Outcome {
	t.Helper()
	select {
	case out := <-tr.Done():
		return out
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for outcome")
		return tracker.Outcome{}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func sampleResult() *storyapi.JobResult {
	credits := 7
	return &storyapi.JobResult{
		Story: storyapi.StoryDraft{
			Title:     "Luna's Space Adventure",
			Pages:     map[int]string{1: "Once upon a time", 2: "Luna flew to the moon"},
			PageCount: 2,
		},
		SceneImages: []storyapi.PartialPage{
			{Page: 1, Image: "img-1"},
			{Page: 2, Image: "img-2"},
		},
		Covers:           storyapi.CoverSet{FrontCover: "front", InitialPage: "initial", BackCover: "back"},
		CreditsRemaining: &credits,
	}
}

func TestStartRunsToCompletion(t *testing.T) {
	fake := testsupport.NewFakeService("job-1",
		testsupport.PollStep{Status: testsupport.RunningStatus(20, "writing outline")},
		testsupport.PollStep{Status: testsupport.RunningStatus(60, "drawing pages")},
		testsupport.PollStep{Status: testsupport.CompletedStatus(sampleResult())},
	)
	tr, store, cfg := newTestTracker(t, fake)

	if err := tr.Start(context.Background(), storyapi.Request{Title: "luna's space adventure", ChildName: "Luna"}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	out := waitOutcome(t, tr)
	if out.Status != storyapi.StatusCompleted {
		t.Fatalf("expected completed outcome, got %+v", out)
	}
	if out.Err != nil {
		t.Fatalf("completed outcome carried error: %v", out.Err)
	}
	if !out.State.Final {
		t.Fatal("final state should be marked Final")
	}
	if out.State.Draft == nil || out.State.Draft.PageCount != 2 {
		t.Fatalf("final state missing authoritative draft: %+v", out.State.Draft)
	}
	if out.State.Covers[story.SlotFrontCover] != "front" {
		t.Fatalf("final covers not applied: %v", out.State.Covers)
	}
	if out.State.Credits == nil || *out.State.Credits != 7 {
		t.Fatalf("final credit balance not applied: %v", out.State.Credits)
	}

	rec, err := store.Current(context.Background(), cfg.Tracker.SessionKey)
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if rec != nil {
		t.Fatalf("session record should be cleared after completion, got %+v", rec)
	}
	if len(fake.CanceledJobs()) != 0 {
		t.Fatalf("completion should not cancel the remote job: %v", fake.CanceledJobs())
	}

	waitFor(t, "supervision to end", func() bool { return !tr.Snapshot().Running })

	// With the record consumed, a fresh tracker has nothing to re-attach to.
	second := tracker.New(cfg, fake, store, nil, logging.NewNop())
	if err := second.Resume(context.Background()); !errors.Is(err, tracker.ErrNoSession) {
		t.Fatalf("expected ErrNoSession after completion, got %v", err)
	}
}

func TestTransientPollFailuresDoNotHaltPolling(t *testing.T) {
	pollErr := services.Wrap(services.ErrTransient, "storyapi", "GetJobStatus", "connection reset", nil)
	fake := testsupport.NewFakeService("job-2",
		testsupport.PollStep{Err: pollErr},
		testsupport.PollStep{Err: pollErr},
		testsupport.PollStep{Status: testsupport.RunningStatus(10, "working")},
		testsupport.PollStep{Status: testsupport.CompletedStatus(sampleResult())},
	)
	tr, _, _ := newTestTracker(t, fake)

	if err := tr.Start(context.Background(), storyapi.Request{Title: "t", ChildName: "c"}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	out := waitOutcome(t, tr)
	if out.Status != storyapi.StatusCompleted {
		t.Fatalf("expected completion despite transient failures, got %+v", out)
	}
}

func TestConsecutiveFailureBoundFailsJobLocally(t *testing.T) {
	pollErr := services.Wrap(services.ErrTransient, "storyapi", "GetJobStatus", "connection reset", nil)
	fake := testsupport.NewFakeService("job-3",
		testsupport.PollStep{Err: pollErr},
	)
	tr, store, cfg := newTestTracker(t, fake, tracker.WithMaxPollFailures(3))

	if err := tr.Start(context.Background(), storyapi.Request{Title: "t", ChildName: "c"}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	out := waitOutcome(t, tr)
	if out.Status != storyapi.StatusFailed {
		t.Fatalf("expected local failure outcome, got %+v", out)
	}
	if !services.IsTransient(out.Err) {
		t.Fatalf("local failure should classify as transient, got %v", out.Err)
	}

	// The remote job may still be running; the record stays so a later
	// attach can pick it back up.
	rec, err := store.Current(context.Background(), cfg.Tracker.SessionKey)
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if rec == nil || rec.JobID != "job-3" {
		t.Fatalf("session record should survive local poll abandonment, got %+v", rec)
	}
}

func TestRemoteFailureClearsSessionRecord(t *testing.T) {
	fake := testsupport.NewFakeService("job-4",
		testsupport.PollStep{Status: testsupport.RunningStatus(10, "working")},
		testsupport.PollStep{Status: testsupport.FailedStatus("out of credits")},
	)
	tr, store, cfg := newTestTracker(t, fake)

	if err := tr.Start(context.Background(), storyapi.Request{Title: "t", ChildName: "c"}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	out := waitOutcome(t, tr)
	if out.Status != storyapi.StatusFailed {
		t.Fatalf("expected failed outcome, got %+v", out)
	}
	if !errors.Is(out.Err, services.ErrTerminal) {
		t.Fatalf("expected terminal classification, got %v", out.Err)
	}

	rec, err := store.Current(context.Background(), cfg.Tracker.SessionKey)
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if rec != nil {
		t.Fatalf("session record should be cleared after remote failure, got %+v", rec)
	}
}

func TestDisplayedProgressNeverRegresses(t *testing.T) {
	fake := testsupport.NewFakeService("job-5",
		testsupport.PollStep{Status: testsupport.RunningStatus(5, "writing outline")},
		testsupport.PollStep{Status: testsupport.RunningStatus(3, "retrying a scene")},
	)
	tr, _, _ := newTestTracker(t, fake)

	if err := tr.Start(context.Background(), storyapi.Request{Title: "t", ChildName: "c"}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() { _ = tr.Cancel(context.Background()) }()

	waitFor(t, "both scripted polls", func() bool { return fake.Polls() >= 2 })
	waitFor(t, "stale message to surface", func() bool {
		return tr.Snapshot().State.Progress.Message == "retrying a scene"
	})

	snap := tr.Snapshot()
	if snap.State.Progress.Current != 5 {
		t.Fatalf("stale numeric progress must be discarded, got %d", snap.State.Progress.Current)
	}
}

func TestCancelStopsPollingAndClearsRecord(t *testing.T) {
	fake := testsupport.NewFakeService("job-6",
		testsupport.PollStep{Status: testsupport.RunningStatus(30, "working")},
	)
	tr, store, cfg := newTestTracker(t, fake)

	if err := tr.Start(context.Background(), storyapi.Request{Title: "t", ChildName: "c"}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, "first poll", func() bool { return fake.Polls() >= 1 })

	if err := tr.Cancel(context.Background()); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	out := waitOutcome(t, tr)
	if !out.Cancelled {
		t.Fatalf("expected cancelled outcome, got %+v", out)
	}
	if got := fake.CanceledJobs(); len(got) != 1 || got[0] != "job-6" {
		t.Fatalf("remote cancel not issued: %v", got)
	}

	rec, err := store.Current(context.Background(), cfg.Tracker.SessionKey)
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if rec != nil {
		t.Fatalf("session record should be cleared on cancel, got %+v", rec)
	}
	if tr.Snapshot().Running {
		t.Fatal("tracker should not be running after cancel")
	}
}

func TestLateResponseAfterCancelIsDiscarded(t *testing.T) {
	cases := []struct {
		name string
		late *storyapi.JobStatus
	}{
		{"running", testsupport.RunningStatus(90, "almost done")},
		{"completed", testsupport.CompletedStatus(sampleResult())},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gate := make(chan struct{})
			fake := testsupport.NewFakeService("job-late",
				testsupport.PollStep{Status: testsupport.RunningStatus(10, "writing outline")},
				testsupport.PollStep{Status: tc.late, Gate: gate},
			)
			tr, store, cfg := newTestTracker(t, fake)

			if err := tr.Start(context.Background(), storyapi.Request{Title: "t", ChildName: "c"}); err != nil {
				t.Fatalf("Start failed: %v", err)
			}
			waitFor(t, "second poll in flight", func() bool { return fake.Polls() == 2 })

			// The held poll is released by cancellation and still yields
			// its response, like a reply already on the wire.
			if err := tr.Cancel(context.Background()); err != nil {
				t.Fatalf("Cancel failed: %v", err)
			}

			out := waitOutcome(t, tr)
			if !out.Cancelled || out.Err != nil {
				t.Fatalf("expected cancelled outcome, got %+v", out)
			}

			snap := tr.Snapshot()
			if snap.State.Progress.Current != 10 {
				t.Fatalf("late response should not advance progress, got %d", snap.State.Progress.Current)
			}
			if snap.State.Draft != nil {
				t.Fatalf("late response should not be adopted, got draft %+v", snap.State.Draft)
			}

			rec, err := store.Current(context.Background(), cfg.Tracker.SessionKey)
			if err != nil {
				t.Fatalf("Current failed: %v", err)
			}
			if rec != nil {
				t.Fatalf("cleared session record must not resurrect, got %+v", rec)
			}
		})
	}
}

func TestResumeRehydratesAndSupervises(t *testing.T) {
	fake := testsupport.NewFakeService("job-7",
		testsupport.PollStep{Status: &storyapi.JobStatus{
			Status:        storyapi.StatusRunning,
			Progress:      &storyapi.Progress{Current: 40, Total: 100, Message: "drawing pages"},
			PartialCovers: &storyapi.CoverSet{FrontCover: "front"},
		}},
		testsupport.PollStep{Status: testsupport.CompletedStatus(sampleResult())},
	)
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.TrackJob(t, store, cfg.Tracker.SessionKey, "job-7", "Luna's Space Adventure")

	tr := tracker.New(cfg, fake, store, nil, logging.NewNop(), tracker.WithPollInterval(100*time.Millisecond))
	if err := tr.Resume(context.Background()); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}

	snap := tr.Snapshot()
	if snap.JobID != "job-7" || snap.Title != "Luna's Space Adventure" {
		t.Fatalf("resume did not adopt the session record: %+v", snap)
	}
	if snap.State.Progress.Current < 40 {
		t.Fatalf("rehydrated progress not applied, got %d", snap.State.Progress.Current)
	}
	if snap.State.Covers[story.SlotFrontCover] != "front" {
		t.Fatalf("rehydrated cover fragment not applied: %v", snap.State.Covers)
	}

	out := waitOutcome(t, tr)
	if out.Status != storyapi.StatusCompleted {
		t.Fatalf("expected completion after resume, got %+v", out)
	}
	if len(fake.CreatedRequests()) != 0 {
		t.Fatal("resume must not create a duplicate job")
	}
}

func TestResumeFiresGateImmediatelyOnTerminalStatus(t *testing.T) {
	fake := testsupport.NewFakeService("job-8",
		testsupport.PollStep{Status: testsupport.CompletedStatus(sampleResult())},
	)
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.TrackJob(t, store, cfg.Tracker.SessionKey, "job-8", "Example")

	tr := tracker.New(cfg, fake, store, nil, logging.NewNop(), tracker.WithPollInterval(time.Hour))
	if err := tr.Resume(context.Background()); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}

	out := waitOutcome(t, tr)
	if out.Status != storyapi.StatusCompleted {
		t.Fatalf("expected completed outcome, got %+v", out)
	}
	if fake.Polls() != 1 {
		t.Fatalf("terminal rehydration should not enter the poll loop, polls=%d", fake.Polls())
	}

	rec, err := store.Current(context.Background(), cfg.Tracker.SessionKey)
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if rec != nil {
		t.Fatalf("session record should be cleared, got %+v", rec)
	}
}

func TestResumeWithoutSessionRecord(t *testing.T) {
	fake := testsupport.NewFakeService("unused")
	tr, _, _ := newTestTracker(t, fake)
	if err := tr.Resume(context.Background()); !errors.Is(err, tracker.ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestStartConflictsWithTrackedSession(t *testing.T) {
	fake := testsupport.NewFakeService("job-9")
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.TrackJob(t, store, cfg.Tracker.SessionKey, "job-old", "Old Story")

	tr := tracker.New(cfg, fake, store, nil, logging.NewNop())
	err := tr.Start(context.Background(), storyapi.Request{Title: "t", ChildName: "c"})
	var conflict *storyapi.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}
	if conflict.ExistingJobID != "job-old" {
		t.Fatalf("conflict should carry the existing handle, got %q", conflict.ExistingJobID)
	}
	if !errors.Is(err, services.ErrConflict) {
		t.Fatalf("conflict should classify via the shared marker, got %v", err)
	}
	if len(fake.CreatedRequests()) != 0 {
		t.Fatal("local conflict must not reach the service")
	}
}

func TestStartSurfacesServiceConflict(t *testing.T) {
	fake := testsupport.NewFakeService("unused",
		testsupport.PollStep{Status: testsupport.CompletedStatus(sampleResult())},
	)
	fake.CreateErr = &storyapi.ConflictError{ExistingJobID: "job-elsewhere"}
	tr, _, _ := newTestTracker(t, fake)

	err := tr.Start(context.Background(), storyapi.Request{Title: "t", ChildName: "c"})
	var conflict *storyapi.ConflictError
	if !errors.As(err, &conflict) || conflict.ExistingJobID != "job-elsewhere" {
		t.Fatalf("expected service conflict with existing handle, got %v", err)
	}

	// The session lock must be released on failure so a retry can proceed.
	fake.CreateErr = nil
	fake.CreateResult = &storyapi.CreatedJob{JobID: "job-10", CreditsRemaining: 5}
	if err := tr.Start(context.Background(), storyapi.Request{Title: "t", ChildName: "c"}); err != nil {
		t.Fatalf("retry after conflict failed: %v", err)
	}
	out := waitOutcome(t, tr)
	if out.Status != storyapi.StatusCompleted {
		t.Fatalf("expected completion, got %+v", out)
	}
}

func TestStallFlagRaisesAndClears(t *testing.T) {
	var mu sync.Mutex
	now := time.Unix(0, 0)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	fake := testsupport.NewFakeService("job-11",
		testsupport.PollStep{Status: testsupport.RunningStatus(10, "working")},
	)
	tr, _, cfg := newTestTracker(t, fake, tracker.WithClock(clock))

	if err := tr.Start(context.Background(), storyapi.Request{Title: "t", ChildName: "c"}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() { _ = tr.Cancel(context.Background()) }()

	waitFor(t, "initial progress", func() bool { return tr.Snapshot().State.Progress.Current == 10 })

	advance(time.Duration(cfg.Tracker.StallThreshold)*time.Second + time.Second)
	waitFor(t, "stall flag to raise", func() bool { return tr.Snapshot().Stalled })

	fake.Script(testsupport.PollStep{Status: testsupport.RunningStatus(50, "drawing pages")})
	waitFor(t, "stall flag to clear on progress", func() bool {
		snap := tr.Snapshot()
		return !snap.Stalled && snap.State.Progress.Current == 50
	})
}

func TestDismissStallLowersFlag(t *testing.T) {
	var mu sync.Mutex
	now := time.Unix(0, 0)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	fake := testsupport.NewFakeService("job-12",
		testsupport.PollStep{Status: testsupport.RunningStatus(10, "working")},
	)
	tr, _, cfg := newTestTracker(t, fake, tracker.WithClock(clock))

	if err := tr.Start(context.Background(), storyapi.Request{Title: "t", ChildName: "c"}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() { _ = tr.Cancel(context.Background()) }()

	waitFor(t, "initial progress", func() bool { return tr.Snapshot().State.Progress.Current == 10 })
	mu.Lock()
	now = now.Add(time.Duration(cfg.Tracker.StallThreshold)*time.Second + time.Second)
	mu.Unlock()
	waitFor(t, "stall flag to raise", func() bool { return tr.Snapshot().Stalled })

	if err := tr.DismissStall(); err != nil {
		t.Fatalf("DismissStall failed: %v", err)
	}
	if tr.Snapshot().Stalled {
		t.Fatal("flag should be down after dismissal")
	}
}
