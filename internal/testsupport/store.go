package testsupport

import (
	"context"
	"testing"
	"time"

	"storyloom/internal/config"
	"storyloom/internal/session"
)

// MustOpenStore opens a session.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *session.Store {
	t.Helper()

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("config.EnsureDirectories: %v", err)
	}
	store, err := session.Open(cfg)
	if err != nil {
		t.Fatalf("session.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// TrackJob records a tracked job for tests using the provided store.
func TrackJob(t testing.TB, store *session.Store, sessionKey, jobID, title string) session.Record {
	t.Helper()

	rec := session.Record{
		SessionKey: sessionKey,
		JobID:      jobID,
		Title:      title,
		CreatedAt:  time.Now().UTC(),
	}
	if err := store.Track(context.Background(), rec); err != nil {
		t.Fatalf("store.Track: %v", err)
	}
	return rec
}
