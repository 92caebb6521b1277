package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"timewright/internal/store"
)

func openTestClient(t *testing.T, path string) *Client {
	t.Helper()
	ctx := context.Background()

	client, err := New(ctx, "sqlite://"+path)
	if err != nil {
		t.Fatalf("opening sqlite client: %v", err)
	}
	t.Cleanup(func() { client.Close(ctx) })

	if err := client.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensuring schema: %v", err)
	}
	return client
}

func putTestSession(t *testing.T, client *Client, sessionID, campaignID string) {
	t.Helper()
	now := time.Now()
	err := client.PutEntity(context.Background(), store.Entity{
		ID:         sessionID,
		CampaignID: campaignID,
		Kind:       store.KindSession,
		Name:       "Session " + sessionID,
		TypeFields: map[string]string{},
		CreatedAt:  now,
		ModifiedAt: now,
	})
	if err != nil {
		t.Fatalf("putting session entity: %v", err)
	}
}

func TestAcquireSessionRunExclusive(t *testing.T) {
	ctx := context.Background()
	client := openTestClient(t, filepath.Join(t.TempDir(), "runs.db"))
	putTestSession(t, client, "s1", "c1")
	putTestSession(t, client, "s2", "c1")

	started := time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC)
	if _, err := client.AcquireSessionRun(ctx, store.ActiveSessionRun{CampaignID: "c1", SessionID: "s1", StartedAt: started}); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}

	_, err := client.AcquireSessionRun(ctx, store.ActiveSessionRun{CampaignID: "c1", SessionID: "s2", StartedAt: time.Now()})
	var conflict *store.SessionRunConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected SessionRunConflictError, got %v", err)
	}
	if conflict.HolderSessionID != "s1" {
		t.Fatalf("conflict names %q, want s1", conflict.HolderSessionID)
	}

	// Holder unchanged.
	run, err := client.GetSessionRun(ctx, "c1")
	if err != nil {
		t.Fatalf("getting run: %v", err)
	}
	if run == nil || run.SessionID != "s1" {
		t.Fatalf("expected s1 still active, got %+v", run)
	}
}

func TestAcquireSessionRunSameSessionIdempotent(t *testing.T) {
	ctx := context.Background()
	client := openTestClient(t, filepath.Join(t.TempDir(), "runs.db"))
	putTestSession(t, client, "s1", "c1")

	started := time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC)
	if _, err := client.AcquireSessionRun(ctx, store.ActiveSessionRun{CampaignID: "c1", SessionID: "s1", StartedAt: started}); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}

	run, err := client.AcquireSessionRun(ctx, store.ActiveSessionRun{CampaignID: "c1", SessionID: "s1", StartedAt: time.Now()})
	if err != nil {
		t.Fatalf("re-acquire by holder failed: %v", err)
	}
	if !run.StartedAt.Equal(started) {
		t.Fatalf("re-acquire must keep original started_at, got %v", run.StartedAt)
	}
}

func TestReleaseSessionRun(t *testing.T) {
	ctx := context.Background()
	client := openTestClient(t, filepath.Join(t.TempDir(), "runs.db"))
	putTestSession(t, client, "s1", "c1")

	if _, err := client.AcquireSessionRun(ctx, store.ActiveSessionRun{CampaignID: "c1", SessionID: "s1", StartedAt: time.Now()}); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	ended := time.Date(2026, 3, 14, 23, 30, 0, 0, time.UTC)
	if err := client.ReleaseSessionRun(ctx, "c1", "s1", ended, 123); err != nil {
		t.Fatalf("release failed: %v", err)
	}

	run, err := client.GetSessionRun(ctx, "c1")
	if err != nil {
		t.Fatalf("getting run: %v", err)
	}
	if run != nil {
		t.Fatalf("pointer not cleared: %+v", run)
	}

	session, err := client.GetEntity(ctx, "s1")
	if err != nil {
		t.Fatalf("getting session: %v", err)
	}
	if session.EndedAt == nil || !session.EndedAt.Equal(ended) {
		t.Fatalf("session ended_at = %v, want %v", session.EndedAt, ended)
	}
	if session.DurationSeconds == nil || *session.DurationSeconds != 123 {
		t.Fatalf("session duration = %v, want 123", session.DurationSeconds)
	}
}

func TestReleaseSessionRunNotActive(t *testing.T) {
	ctx := context.Background()
	client := openTestClient(t, filepath.Join(t.TempDir(), "runs.db"))
	putTestSession(t, client, "s1", "c1")

	err := client.ReleaseSessionRun(ctx, "c1", "s1", time.Now(), 10)
	if !errors.Is(err, store.ErrNoActiveRun) {
		t.Fatalf("expected ErrNoActiveRun, got %v", err)
	}

	// No terminal fields written.
	session, err := client.GetEntity(ctx, "s1")
	if err != nil {
		t.Fatalf("getting session: %v", err)
	}
	if session.EndedAt != nil || session.DurationSeconds != nil {
		t.Fatalf("session mutated despite failed release: %+v", session)
	}
}

func TestReleaseSessionRunWrongHolder(t *testing.T) {
	ctx := context.Background()
	client := openTestClient(t, filepath.Join(t.TempDir(), "runs.db"))
	putTestSession(t, client, "s1", "c1")
	putTestSession(t, client, "s2", "c1")

	if _, err := client.AcquireSessionRun(ctx, store.ActiveSessionRun{CampaignID: "c1", SessionID: "s1", StartedAt: time.Now()}); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	err := client.ReleaseSessionRun(ctx, "c1", "s2", time.Now(), 10)
	var conflict *store.SessionRunConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected SessionRunConflictError, got %v", err)
	}
	if conflict.HolderSessionID != "s1" {
		t.Fatalf("conflict names %q, want s1", conflict.HolderSessionID)
	}
}

// The run pointer must survive a process restart: a new client on the same
// file still reports the live session with its original start time.
func TestSessionRunSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs.db")

	first := openTestClient(t, path)
	putTestSession(t, first, "s1", "c1")

	started := time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC)
	if _, err := first.AcquireSessionRun(ctx, store.ActiveSessionRun{CampaignID: "c1", SessionID: "s1", StartedAt: started}); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if err := first.Close(ctx); err != nil {
		t.Fatalf("closing first client: %v", err)
	}

	second := openTestClient(t, path)
	run, err := second.GetSessionRun(ctx, "c1")
	if err != nil {
		t.Fatalf("getting run after reopen: %v", err)
	}
	if run == nil || run.SessionID != "s1" {
		t.Fatalf("expected s1 active after reopen, got %+v", run)
	}
	if !run.StartedAt.Equal(started) {
		t.Fatalf("started_at = %v, want %v", run.StartedAt, started)
	}
}
