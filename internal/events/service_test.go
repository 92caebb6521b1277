package events

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"timewright/internal/apperr"
	"timewright/internal/store"
	"timewright/internal/store/memory"
	"timewright/internal/timeline"
)

func testService(st store.Store) *Service {
	logger := slog.New(slog.DiscardHandler)
	svc := NewService(st, timeline.NewPropagator(st, logger), nil, logger)
	counter := 0
	svc.newID = func() (string, error) {
		counter++
		return fmt.Sprintf("generated-%03d", counter), nil
	}
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.clock = func() time.Time {
		now := base
		base = base.Add(time.Second)
		return now
	}
	return svc
}

func seedWorld(t *testing.T, st *memory.Store) store.Continuity {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	cont := store.Continuity{ID: "root", WorldID: "w1", Name: "Prime", CreatedAt: now, ModifiedAt: now}
	if err := st.PutContinuity(ctx, cont); err != nil {
		t.Fatalf("seeding continuity: %v", err)
	}
	hero := store.Entity{
		ID: "hero", WorldID: "w1", Kind: store.KindCharacter, Name: "Mira",
		TypeFields: map[string]string{"status": "alive"},
		CreatedAt:  now, ModifiedAt: now,
	}
	if err := st.PutEntity(ctx, hero); err != nil {
		t.Fatalf("seeding entity: %v", err)
	}
	return cont
}

func TestRecordValidation(t *testing.T) {
	svc := testService(memory.New())

	_, _, err := svc.Record(context.Background(), RecordRequest{Name: " ", ContinuityID: "root"})
	if !apperr.IsCode(err, apperr.CodeValidation) {
		t.Fatalf("expected VALIDATION, got %v", err)
	}

	_, _, err = svc.Record(context.Background(), RecordRequest{Name: "Battle", ContinuityID: ""})
	if !apperr.IsCode(err, apperr.CodeValidation) {
		t.Fatalf("expected VALIDATION, got %v", err)
	}

	_, _, err = svc.Record(context.Background(), RecordRequest{Name: "Battle", ContinuityID: "ghost"})
	if !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestRecordAppliesOutcomes(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	cont := seedWorld(t, st)
	svc := testService(st)

	event, result, err := svc.Record(ctx, RecordRequest{
		ContinuityID: cont.ID,
		Name:         "The Siege of Vel",
		InWorldTime:  "1042-06-01",
		Outcomes: []store.Outcome{
			{EntityID: "hero", Field: "status", ToValue: "wounded"},
		},
	})
	if err != nil {
		t.Fatalf("Record() error: %v", err)
	}
	if event.WorldID != cont.WorldID {
		t.Fatalf("event world = %q, want %q", event.WorldID, cont.WorldID)
	}
	if len(result.Applied) != 1 || len(result.Warnings) != 0 {
		t.Fatalf("result = %+v", result)
	}

	hero, err := st.GetEntity(ctx, "hero")
	if err != nil {
		t.Fatalf("GetEntity() error: %v", err)
	}
	if hero.TypeFields["status"] != "wounded" {
		t.Fatalf("status = %q, want wounded", hero.TypeFields["status"])
	}
}

func TestRecordSurfacesWarnings(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	cont := seedWorld(t, st)
	svc := testService(st)

	_, result, err := svc.Record(ctx, RecordRequest{
		ContinuityID: cont.ID,
		Name:         "Rumor",
		InWorldTime:  "1042-06-01",
		Outcomes: []store.Outcome{
			{EntityID: "ghost", Field: "status", ToValue: "dead"},
			{EntityID: "hero", Field: "status", ToValue: "missing"},
		},
	})
	if err != nil {
		t.Fatalf("Record() error: %v", err)
	}
	if len(result.Applied) != 1 {
		t.Fatalf("applied = %+v", result.Applied)
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("warnings = %+v", result.Warnings)
	}
}

func TestUpdateRepropagatesOnTimeChange(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	cont := seedWorld(t, st)
	svc := testService(st)

	first, _, err := svc.Record(ctx, RecordRequest{
		ContinuityID: cont.ID, Name: "Coronation", InWorldTime: "1042-01-01",
		Outcomes: []store.Outcome{{EntityID: "hero", Field: "title", ToValue: "Queen"}},
	})
	if err != nil {
		t.Fatalf("Record() error: %v", err)
	}
	_, _, err = svc.Record(ctx, RecordRequest{
		ContinuityID: cont.ID, Name: "Abdication", InWorldTime: "1042-06-01",
		Outcomes: []store.Outcome{{EntityID: "hero", Field: "title", ToValue: "Wanderer"}},
	})
	if err != nil {
		t.Fatalf("Record() error: %v", err)
	}

	// Moving the coronation after the abdication flips the winner.
	later := "1043-01-01"
	_, result, err := svc.Update(ctx, UpdateRequest{EventID: first.ID, InWorldTime: &later})
	if err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if len(result.Applied) != 1 {
		t.Fatalf("applied = %+v", result.Applied)
	}

	hero, err := st.GetEntity(ctx, "hero")
	if err != nil {
		t.Fatalf("GetEntity() error: %v", err)
	}
	if hero.TypeFields["title"] != "Queen" {
		t.Fatalf("title = %q, want Queen", hero.TypeFields["title"])
	}
}

func TestUpdateWithoutOutcomeChangeSkipsPropagation(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	cont := seedWorld(t, st)
	svc := testService(st)

	event, _, err := svc.Record(ctx, RecordRequest{
		ContinuityID: cont.ID, Name: "Skirmish", InWorldTime: "1042-06-01",
		Outcomes: []store.Outcome{{EntityID: "hero", Field: "status", ToValue: "wounded"}},
	})
	if err != nil {
		t.Fatalf("Record() error: %v", err)
	}

	name := "Skirmish at the Ford"
	updated, result, err := svc.Update(ctx, UpdateRequest{EventID: event.ID, Name: &name})
	if err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if updated.Name != name {
		t.Fatalf("name = %q", updated.Name)
	}
	if len(result.Applied) != 0 || len(result.Warnings) != 0 {
		t.Fatalf("expected no propagation, got %+v", result)
	}
}

func TestDeleteBranchPointBlocked(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	cont := seedWorld(t, st)
	svc := testService(st)

	event, _, err := svc.Record(ctx, RecordRequest{ContinuityID: cont.ID, Name: "The Fork", InWorldTime: "1042-06-01"})
	if err != nil {
		t.Fatalf("Record() error: %v", err)
	}

	now := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	branch := store.Continuity{
		ID: "branch", WorldID: "w1", Name: "What If",
		BranchedFromID: cont.ID, BranchPointEventID: event.ID,
		CreatedAt: now, ModifiedAt: now,
	}
	if err := st.PutContinuity(ctx, branch); err != nil {
		t.Fatalf("seeding branch: %v", err)
	}

	err = svc.Delete(ctx, event.ID)
	if !apperr.IsCode(err, apperr.CodeConflict) {
		t.Fatalf("expected CONFLICT, got %v", err)
	}

	if err := st.DeleteContinuity(ctx, branch.ID); err != nil {
		t.Fatalf("DeleteContinuity() error: %v", err)
	}
	if err := svc.Delete(ctx, event.ID); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := svc.Get(ctx, event.ID); !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND after delete, got %v", err)
	}
}

func TestCurrentState(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	cont := seedWorld(t, st)
	svc := testService(st)

	_, _, err := svc.Record(ctx, RecordRequest{
		ContinuityID: cont.ID, Name: "Ambush", InWorldTime: "1042-06-01",
		Outcomes: []store.Outcome{{EntityID: "hero", Field: "status", ToValue: "wounded"}},
	})
	if err != nil {
		t.Fatalf("Record() error: %v", err)
	}
	later, _, err := svc.Record(ctx, RecordRequest{
		ContinuityID: cont.ID, Name: "Healing", InWorldTime: "1042-08-01",
		Outcomes: []store.Outcome{
			{EntityID: "hero", Field: "status", ToValue: "alive"},
			{EntityID: "hero", Field: "location", ToValue: "Vel"},
		},
	})
	if err != nil {
		t.Fatalf("Record() error: %v", err)
	}

	state, err := svc.CurrentState(ctx, cont.ID, "hero")
	if err != nil {
		t.Fatalf("CurrentState() error: %v", err)
	}
	if len(state) != 2 {
		t.Fatalf("state = %+v", state)
	}
	if state["status"].Outcome.ToValue != "alive" || state["status"].EventID != later.ID {
		t.Fatalf("status winner = %+v", state["status"])
	}
	if state["location"].Outcome.ToValue != "Vel" {
		t.Fatalf("location winner = %+v", state["location"])
	}

	if _, err := svc.CurrentState(ctx, cont.ID, "ghost"); !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestTimelineIncludesInheritedEvents(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	cont := seedWorld(t, st)
	svc := testService(st)

	early, _, err := svc.Record(ctx, RecordRequest{ContinuityID: cont.ID, Name: "Founding", InWorldTime: "1040-01-01"})
	if err != nil {
		t.Fatalf("Record() error: %v", err)
	}
	fork, _, err := svc.Record(ctx, RecordRequest{ContinuityID: cont.ID, Name: "The Fork", InWorldTime: "1042-06-01"})
	if err != nil {
		t.Fatalf("Record() error: %v", err)
	}
	// After the branch point in the parent, invisible to the branch.
	if _, _, err := svc.Record(ctx, RecordRequest{ContinuityID: cont.ID, Name: "Aftermath", InWorldTime: "1043-01-01"}); err != nil {
		t.Fatalf("Record() error: %v", err)
	}

	now := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	branch := store.Continuity{
		ID: "branch", WorldID: "w1", Name: "What If",
		BranchedFromID: cont.ID, BranchPointEventID: fork.ID,
		CreatedAt: now, ModifiedAt: now,
	}
	if err := st.PutContinuity(ctx, branch); err != nil {
		t.Fatalf("seeding branch: %v", err)
	}
	own, _, err := svc.Record(ctx, RecordRequest{ContinuityID: branch.ID, Name: "Divergence", InWorldTime: "1042-07-01"})
	if err != nil {
		t.Fatalf("Record() error: %v", err)
	}

	events, err := svc.Timeline(ctx, branch.ID)
	if err != nil {
		t.Fatalf("Timeline() error: %v", err)
	}
	got := make([]string, 0, len(events))
	for _, e := range events {
		got = append(got, e.ID)
	}
	want := []string{early.ID, fork.ID, own.ID}
	if len(got) != len(want) {
		t.Fatalf("timeline = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("timeline = %v, want %v", got, want)
		}
	}
}
