package tracker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"storyloom/internal/config"
	"storyloom/internal/logging"
	"storyloom/internal/notifications"
	"storyloom/internal/services"
	"storyloom/internal/session"
	"storyloom/internal/story"
	"storyloom/internal/storyapi"
)

// ErrNoSession indicates Resume was called with no tracked job on record.
var ErrNoSession = errors.New("no tracked generation job for this session")

// ErrNotSupervising indicates Cancel or DismissStall was called before any
// job was started or resumed.
var ErrNotSupervising = errors.New("no generation job is being supervised")

// Outcome is the one-shot terminal event for a supervised job. Exactly one
// Outcome is delivered per job handle, whichever of completion, failure, or
// cancellation arrives first.
type Outcome struct {
	JobID     string
	Status    storyapi.Status
	Err       error
	Cancelled bool
	State     story.State
}

// Snapshot is the read-only view served to other goroutines.
type Snapshot struct {
	JobID   string
	Title   string
	Running bool
	Stalled bool
	State   story.State
}

// Tracker supervises one remote generation job: it owns the poll loop,
// folds poll responses into accumulated state through the story.Merge
// reducer, and converts terminal statuses into a single Outcome.
type Tracker struct {
	cfg      *config.Config
	client   storyapi.Caller
	store    *session.Store
	notifier notifications.Service
	logger   *slog.Logger

	pollInterval  time.Duration
	statusTimeout time.Duration
	maxFailures   int
	now           func() time.Time

	gate *completionGate
	done chan Outcome

	mu        sync.Mutex
	state     story.State
	jobID     string
	title     string
	running   bool
	cancelled bool
	cancelRun context.CancelFunc
	stall     *stallDetector
	lock      *session.Lock
	wg        sync.WaitGroup
}

// Option configures optional Tracker behavior.
type Option func(*Tracker)

// WithPollInterval overrides the configured poll interval (used in tests).
func WithPollInterval(interval time.Duration) Option {
	return func(t *Tracker) {
		if interval > 0 {
			t.pollInterval = interval
		}
	}
}

// WithClock injects the time source used by the stall detector.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// WithMaxPollFailures overrides the consecutive transient failure bound.
func WithMaxPollFailures(limit int) Option {
	return func(t *Tracker) {
		if limit > 0 {
			t.maxFailures = limit
		}
	}
}

// New constructs a tracker. The tracker is inert until Start or Resume.
func New(cfg *config.Config, client storyapi.Caller, store *session.Store, notifier notifications.Service, logger *slog.Logger, opts ...Option) *Tracker {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	t := &Tracker{
		cfg:           cfg,
		client:        client,
		store:         store,
		notifier:      notifier,
		logger:        logging.NewComponentLogger(logger, "tracker"),
		pollInterval:  time.Duration(cfg.Tracker.PollInterval) * time.Second,
		statusTimeout: time.Duration(cfg.Service.StatusTimeout) * time.Second,
		maxFailures:   cfg.Tracker.MaxPollFailures,
		now:           time.Now,
		gate:          newCompletionGate(),
		done:          make(chan Outcome, 1),
		state:         story.NewState(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Done returns the one-shot terminal event channel for the supervised job.
func (t *Tracker) Done() <-chan Outcome {
	return t.done
}

// Start submits a new generation request and begins supervision. When the
// service reports a conflicting active job, the returned error carries the
// existing handle as a *storyapi.ConflictError so the caller can choose to
// cancel-and-retry or attach. A job already tracked locally is reported the
// same way without a round trip.
func (t *Tracker) Start(ctx context.Context, req storyapi.Request) error {
	t.mu.Lock()
	if t.running {
		existing := t.jobID
		t.mu.Unlock()
		return &storyapi.ConflictError{ExistingJobID: existing}
	}
	t.mu.Unlock()

	if rec, err := t.store.Current(ctx, t.sessionKey()); err != nil {
		return services.Wrap(services.ErrConfiguration, "tracker", "Start", "read session record", err)
	} else if rec != nil {
		return &storyapi.ConflictError{ExistingJobID: rec.JobID}
	}

	lock := session.NewLock(t.cfg, t.sessionKey())
	if err := lock.Acquire(); err != nil {
		return services.Wrap(services.ErrConflict, "tracker", "Start", "acquire session lock", err)
	}

	created, err := t.client.CreateJob(ctx, req)
	if err != nil {
		_ = lock.Release()
		return err
	}

	title := story.DisplayTitle(req.Title)
	rec := session.Record{
		SessionKey: t.sessionKey(),
		JobID:      created.JobID,
		Title:      title,
		CreatedAt:  t.now().UTC(),
	}
	if err := t.store.Track(ctx, rec); err != nil {
		_ = lock.Release()
		return services.Wrap(services.ErrConfiguration, "tracker", "Start", "record tracked job", err)
	}

	t.logger.Info("generation job created",
		logging.String(logging.FieldJobID, created.JobID),
		logging.String("title", title),
		logging.Int("credits_remaining", created.CreditsRemaining),
	)
	if err := t.notifier.NotifyGenerationStarted(ctx, title); err != nil {
		t.logger.Warn("start notification failed", logging.Error(err))
	}

	credits := created.CreditsRemaining
	state := story.NewState()
	state.Credits = &credits
	t.begin(ctx, created.JobID, title, state, lock)
	return nil
}

// Resume re-attaches to the job in the session record. It fetches the
// current status once to rehydrate accumulated state before entering the
// normal poll loop; a status that is already terminal fires the completion
// gate immediately instead.
func (t *Tracker) Resume(ctx context.Context) error {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return &storyapi.ConflictError{ExistingJobID: t.jobID}
	}
	t.mu.Unlock()

	rec, err := t.store.Current(ctx, t.sessionKey())
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "tracker", "Resume", "read session record", err)
	}
	if rec == nil {
		return ErrNoSession
	}

	lock := session.NewLock(t.cfg, t.sessionKey())
	if err := lock.Acquire(); err != nil {
		return services.Wrap(services.ErrConflict, "tracker", "Resume", "acquire session lock", err)
	}

	status, err := t.client.GetJobStatus(ctx, rec.JobID)
	if err != nil {
		_ = lock.Release()
		return err
	}

	state := story.Merge(story.NewState(), status)
	t.logger.Info("re-attached to tracked job",
		logging.String(logging.FieldJobID, rec.JobID),
		logging.String("title", rec.Title),
		logging.String("status", string(status.Status)),
		logging.Int("progress", state.Progress.Current),
	)

	if status.Status.Terminal() {
		t.mu.Lock()
		t.jobID = rec.JobID
		t.title = rec.Title
		t.state = state
		t.stall = newStallDetector(t.stallThreshold(), t.now)
		t.mu.Unlock()
		t.consumeTerminal(ctx, status)
		_ = lock.Release()
		return nil
	}

	t.begin(ctx, rec.JobID, rec.Title, state, lock)
	return nil
}

// Cancel stops supervision, asks the remote service to cancel the job, and
// clears the session record. Any poll response still in flight is discarded
// rather than applied. Cancellation is not an error condition; the Outcome
// is delivered with Cancelled set.
func (t *Tracker) Cancel(ctx context.Context) error {
	t.mu.Lock()
	if t.jobID == "" {
		t.mu.Unlock()
		return ErrNotSupervising
	}
	jobID := t.jobID
	title := t.title
	cancelRun := t.cancelRun
	t.cancelled = true
	t.mu.Unlock()

	if cancelRun != nil {
		cancelRun()
	}
	t.wg.Wait()

	if err := t.client.CancelJob(ctx, jobID); err != nil {
		t.logger.Warn("remote cancel failed",
			logging.String(logging.FieldJobID, jobID),
			logging.Error(err),
		)
	}
	if err := t.store.ClearIfCurrent(ctx, t.sessionKey(), jobID); err != nil {
		t.logger.Warn("clear session record failed", logging.Error(err))
	}

	if t.gate.fire(jobID) {
		t.logger.Info("generation job cancelled",
			logging.String(logging.FieldJobID, jobID),
			logging.String("title", title),
		)
		t.deliver(Outcome{JobID: jobID, Cancelled: true})
	}
	return nil
}

// DismissStall lowers the advisory stalled flag until progress next advances.
func (t *Tracker) DismissStall() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stall == nil {
		return ErrNotSupervising
	}
	t.stall.Dismiss()
	return nil
}

// Snapshot returns a copy of the accumulated state safe for concurrent reads.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	stalled := false
	if t.stall != nil {
		stalled = t.stall.Stalled()
	}
	return Snapshot{
		JobID:   t.jobID,
		Title:   t.title,
		Running: t.running,
		Stalled: stalled,
		State:   t.state.CloneForView(),
	}
}

func (t *Tracker) sessionKey() string {
	return t.cfg.Tracker.SessionKey
}

func (t *Tracker) stallThreshold() time.Duration {
	return time.Duration(t.cfg.Tracker.StallThreshold) * time.Second
}

// begin installs the job and launches the supervision goroutine. The lock
// is held for the lifetime of supervision and released when the loop exits.
func (t *Tracker) begin(ctx context.Context, jobID, title string, state story.State, lock *session.Lock) {
	runCtx, cancel := context.WithCancel(services.WithJobID(ctx, jobID))

	t.mu.Lock()
	t.jobID = jobID
	t.title = title
	t.state = state
	t.running = true
	t.cancelled = false
	t.cancelRun = cancel
	t.stall = newStallDetector(t.stallThreshold(), t.now)
	t.lock = lock
	t.wg.Add(1)
	t.mu.Unlock()

	go t.supervise(runCtx, jobID)
}

func (t *Tracker) supervise(ctx context.Context, jobID string) {
	defer t.wg.Done()
	defer t.endSupervision()

	logger := logging.WithContext(ctx, t.logger)
	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		status, err := t.pollOnce(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			logger.Warn("status poll failed",
				logging.Int("consecutive_failures", failures),
				logging.Int("max_failures", t.maxFailures),
				logging.Error(err),
			)
			if t.maxFailures > 0 && failures >= t.maxFailures {
				t.failLocally(ctx, jobID, failures, err)
				return
			}
			continue
		}
		failures = 0

		if t.isCancelled() {
			logger.Debug("discarding poll response for cancelled job")
			return
		}

		switch status.Kind() {
		case storyapi.KindProgress:
			t.applyProgress(ctx, logger, status)
		case storyapi.KindCompleted, storyapi.KindFailed:
			t.consumeTerminal(ctx, status)
			return
		}
	}
}

// pollOnce issues a single status query bounded by the configured per-poll
// timeout so one hung request cannot block the loop past its interval.
func (t *Tracker) pollOnce(ctx context.Context, jobID string) (*storyapi.JobStatus, error) {
	if t.statusTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.statusTimeout)
		defer cancel()
	}
	return t.client.GetJobStatus(ctx, jobID)
}

func (t *Tracker) endSupervision() {
	t.mu.Lock()
	t.running = false
	t.cancelRun = nil
	lock := t.lock
	t.lock = nil
	t.mu.Unlock()
	if lock != nil {
		_ = lock.Release()
	}
}

func (t *Tracker) isCancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// applyProgress folds one non-terminal response into state and feeds the
// stall detector. Merge is monotonic and idempotent, so replayed or
// reordered responses cannot regress what is already applied.
func (t *Tracker) applyProgress(ctx context.Context, logger *slog.Logger, status *storyapi.JobStatus) {
	t.mu.Lock()
	wasStalled := t.stall.Stalled()
	t.state = story.Merge(t.state, status)
	current := t.state.Progress.Current
	message := t.state.Progress.Message
	title := t.title
	stalled := t.stall.Observe(current)
	quiet := t.stall.Quiet()
	t.mu.Unlock()

	logger.Debug("poll cycle complete",
		logging.Int("current", current),
		logging.String("message", message),
		logging.Bool("stalled", stalled),
	)

	if stalled && !wasStalled {
		logger.Warn("no progress observed",
			logging.Duration("quiet", quiet),
			logging.Duration("threshold", t.stallThreshold()),
		)
		if err := t.notifier.NotifyGenerationStalled(ctx, title, quiet); err != nil {
			logger.Warn("stall notification failed", logging.Error(err))
		}
	}
}

// consumeTerminal fires the completion gate for a terminal status. The gate
// admits exactly one caller per job handle; a second observation of the same
// terminal status is a no-op.
func (t *Tracker) consumeTerminal(ctx context.Context, status *storyapi.JobStatus) {
	t.mu.Lock()
	jobID := t.jobID
	title := t.title
	t.mu.Unlock()

	if !t.gate.fire(jobID) {
		return
	}

	if err := t.store.ClearIfCurrent(ctx, t.sessionKey(), jobID); err != nil {
		t.logger.Warn("clear session record failed", logging.Error(err))
	}

	switch status.Kind() {
	case storyapi.KindCompleted:
		t.mu.Lock()
		t.state = story.Finalize(t.state, status.Result)
		final := t.state.CloneForView()
		t.mu.Unlock()

		t.logger.Info("generation complete",
			logging.String(logging.FieldJobID, jobID),
			logging.String("title", title),
			logging.Int("pages", final.AppliedPages),
		)
		if err := t.notifier.NotifyGenerationCompleted(ctx, title); err != nil {
			t.logger.Warn("completion notification failed", logging.Error(err))
		}
		t.deliver(Outcome{JobID: jobID, Status: storyapi.StatusCompleted, State: final})
	default:
		reason := status.Error
		if reason == "" {
			reason = "the service reported a failure without detail"
		}
		err := services.Wrap(services.ErrTerminal, "tracker", "poll", reason, nil)
		t.logger.Error("generation failed",
			logging.String(logging.FieldJobID, jobID),
			logging.String("title", title),
			logging.String("reason", reason),
		)
		if nerr := t.notifier.NotifyGenerationFailed(ctx, title, reason); nerr != nil {
			t.logger.Warn("failure notification failed", logging.Error(nerr))
		}
		t.deliver(Outcome{JobID: jobID, Status: storyapi.StatusFailed, Err: err})
	}
}

// failLocally ends supervision after the consecutive transient failure
// bound is exceeded. The remote job may still be running; the session
// record is kept so a later Resume can re-attach once connectivity returns.
func (t *Tracker) failLocally(ctx context.Context, jobID string, failures int, last error) {
	if !t.gate.fire(jobID) {
		return
	}

	t.mu.Lock()
	title := t.title
	t.mu.Unlock()

	err := services.Wrap(services.ErrTransient, "tracker", "poll",
		"status polling abandoned after consecutive failures", last)
	t.logger.Error("status polling abandoned",
		logging.String(logging.FieldJobID, jobID),
		logging.Int("consecutive_failures", failures),
		logging.Error(last),
	)
	if nerr := t.notifier.NotifyGenerationFailed(ctx, title, "status polling kept failing; run attach to retry"); nerr != nil {
		t.logger.Warn("failure notification failed", logging.Error(nerr))
	}
	t.deliver(Outcome{JobID: jobID, Status: storyapi.StatusFailed, Err: err})
}

// deliver hands the one-shot Outcome to the consumer. The channel is
// buffered so delivery never blocks the supervision goroutine.
func (t *Tracker) deliver(outcome Outcome) {
	select {
	case t.done <- outcome:
	default:
	}
}
