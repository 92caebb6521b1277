package sessionrun

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"timewright/internal/apperr"
	"timewright/internal/store"
	"timewright/internal/store/memory"
)

func testTracker(st store.Store) *Tracker {
	tr := NewTracker(st, nil, slog.New(slog.DiscardHandler))
	tr.clock = func() time.Time {
		return time.Date(2026, 2, 14, 19, 0, 0, 0, time.UTC)
	}
	return tr
}

func seedCampaign(t *testing.T, st *memory.Store, sessionIDs ...string) {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	campaign := store.Entity{ID: "c1", WorldID: "w1", Kind: store.KindCampaign, Name: "Embers", CreatedAt: now, ModifiedAt: now}
	if err := st.PutEntity(ctx, campaign); err != nil {
		t.Fatalf("seeding campaign: %v", err)
	}
	for _, id := range sessionIDs {
		session := store.Entity{ID: id, WorldID: "w1", CampaignID: "c1", Kind: store.KindSession, Name: id, CreatedAt: now, ModifiedAt: now}
		if err := st.PutEntity(ctx, session); err != nil {
			t.Fatalf("seeding session: %v", err)
		}
	}
}

func TestStartAndStatus(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	seedCampaign(t, st, "s1")
	tr := testTracker(st)

	run, err := tr.Start(ctx, "c1", "s1")
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if run.SessionID != "s1" || run.CampaignID != "c1" {
		t.Fatalf("run = %+v", run)
	}

	got, err := tr.Status(ctx, "c1")
	if err != nil {
		t.Fatalf("Status() error: %v", err)
	}
	if got == nil || got.SessionID != "s1" {
		t.Fatalf("status = %+v", got)
	}
}

func TestStartConflictNamesHolder(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	seedCampaign(t, st, "s1", "s2")
	tr := testTracker(st)

	if _, err := tr.Start(ctx, "c1", "s1"); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	_, err := tr.Start(ctx, "c1", "s2")
	if !apperr.IsCode(err, apperr.CodeConflict) {
		t.Fatalf("expected CONFLICT, got %v", err)
	}
}

func TestStartSameSessionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	seedCampaign(t, st, "s1")
	tr := testTracker(st)

	first, err := tr.Start(ctx, "c1", "s1")
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	tr.clock = func() time.Time {
		return time.Date(2026, 2, 14, 21, 0, 0, 0, time.UTC)
	}
	again, err := tr.Start(ctx, "c1", "s1")
	if err != nil {
		t.Fatalf("repeat Start() error: %v", err)
	}
	if !again.StartedAt.Equal(first.StartedAt) {
		t.Fatalf("startedAt changed: %v vs %v", again.StartedAt, first.StartedAt)
	}
}

func TestStartValidatesSession(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	seedCampaign(t, st, "s1")

	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	other := store.Entity{ID: "stray", WorldID: "w1", CampaignID: "c2", Kind: store.KindSession, Name: "stray", CreatedAt: now, ModifiedAt: now}
	if err := st.PutEntity(ctx, other); err != nil {
		t.Fatalf("seeding session: %v", err)
	}
	npc := store.Entity{ID: "npc", WorldID: "w1", Kind: store.KindCharacter, Name: "Bran", CreatedAt: now, ModifiedAt: now}
	if err := st.PutEntity(ctx, npc); err != nil {
		t.Fatalf("seeding entity: %v", err)
	}

	tr := testTracker(st)

	if _, err := tr.Start(ctx, "ghost", "s1"); !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
	if _, err := tr.Start(ctx, "c1", "ghost"); !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
	if _, err := tr.Start(ctx, "c1", "stray"); !apperr.IsCode(err, apperr.CodeInvalidOperation) {
		t.Fatalf("expected INVALID_OPERATION, got %v", err)
	}
	if _, err := tr.Start(ctx, "c1", "npc"); !apperr.IsCode(err, apperr.CodeInvalidOperation) {
		t.Fatalf("expected INVALID_OPERATION, got %v", err)
	}
}

func TestStartRejectsEndedSession(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	seedCampaign(t, st, "s1")
	tr := testTracker(st)

	if _, err := tr.Start(ctx, "c1", "s1"); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := tr.End(ctx, "c1", "s1", 7200); err != nil {
		t.Fatalf("End() error: %v", err)
	}

	_, err := tr.Start(ctx, "c1", "s1")
	if !apperr.IsCode(err, apperr.CodeInvalidOperation) {
		t.Fatalf("expected INVALID_OPERATION, got %v", err)
	}
}

func TestEndWritesTerminalFields(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	seedCampaign(t, st, "s1")
	tr := testTracker(st)

	if _, err := tr.Start(ctx, "c1", "s1"); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := tr.End(ctx, "c1", "s1", 9000); err != nil {
		t.Fatalf("End() error: %v", err)
	}

	session, err := st.GetEntity(ctx, "s1")
	if err != nil {
		t.Fatalf("GetEntity() error: %v", err)
	}
	if !session.HasEnded() {
		t.Fatal("session should be ended")
	}
	if session.DurationSeconds == nil || *session.DurationSeconds != 9000 {
		t.Fatalf("duration = %v", session.DurationSeconds)
	}

	run, err := tr.Status(ctx, "c1")
	if err != nil {
		t.Fatalf("Status() error: %v", err)
	}
	if run != nil {
		t.Fatalf("expected idle campaign, got %+v", run)
	}
}

func TestEndErrors(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	seedCampaign(t, st, "s1", "s2")
	tr := testTracker(st)

	if err := tr.End(ctx, "c1", "s1", 100); !apperr.IsCode(err, apperr.CodeInvalidOperation) {
		t.Fatalf("expected INVALID_OPERATION, got %v", err)
	}
	if err := tr.End(ctx, "c1", "s1", -5); !apperr.IsCode(err, apperr.CodeValidation) {
		t.Fatalf("expected VALIDATION, got %v", err)
	}

	if _, err := tr.Start(ctx, "c1", "s1"); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := tr.End(ctx, "c1", "s2", 100); !apperr.IsCode(err, apperr.CodeConflict) {
		t.Fatalf("expected CONFLICT, got %v", err)
	}
}
