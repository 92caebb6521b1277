package timeline

import (
	"context"
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"time"

	"timewright/internal/store"
	"timewright/internal/store/memory"
)

func testPropagator(st store.Store) *Propagator {
	return NewPropagator(st, slog.New(slog.DiscardHandler))
}

func putCharacter(t *testing.T, st *memory.Store, id, name string) {
	t.Helper()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	err := st.PutEntity(context.Background(), store.Entity{
		ID: id, WorldID: "w1", ContinuityID: "cont1", Kind: store.KindCharacter,
		Name: name, TypeFields: map[string]string{}, CreatedAt: now, ModifiedAt: now,
	})
	if err != nil {
		t.Fatalf("putting character %s: %v", id, err)
	}
}

func TestPropagateAppliesLatestInWorldValue(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	putContinuity(t, st, "cont1", "", "")
	putCharacter(t, st, "ch1", "Maeve")

	later := store.Event{
		ID: "e2", ContinuityID: "cont1", InWorldTime: "1042-06-01",
		Outcomes:  []store.Outcome{{EntityID: "ch1", Field: "status", ToValue: "deposed"}},
		CreatedAt: base, ModifiedAt: base,
	}
	earlier := store.Event{
		ID: "e1", ContinuityID: "cont1", InWorldTime: "1042-01-15",
		Outcomes:  []store.Outcome{{EntityID: "ch1", Field: "status", ToValue: "crowned"}},
		CreatedAt: base.Add(time.Hour), ModifiedAt: base.Add(time.Hour),
	}
	putEvent(t, st, later)
	putEvent(t, st, earlier)

	// Triggering from the in-world-earlier event must still pick the
	// in-world-later winner.
	result, err := testPropagator(st).Propagate(ctx, earlier)
	if err != nil {
		t.Fatalf("Propagate() error: %v", err)
	}
	if len(result.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", result.Warnings)
	}
	if len(result.Applied) != 1 || result.Applied[0].Value != "deposed" || result.Applied[0].EventID != "e2" {
		t.Fatalf("applied = %+v, want deposed from e2", result.Applied)
	}

	entity, err := st.GetEntity(ctx, "ch1")
	if err != nil {
		t.Fatalf("getting entity: %v", err)
	}
	if entity.TypeFields["status"] != "deposed" {
		t.Fatalf("status = %q, want deposed", entity.TypeFields["status"])
	}
}

func TestPropagateIdempotent(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	putContinuity(t, st, "cont1", "", "")
	putCharacter(t, st, "ch1", "Maeve")

	trigger := store.Event{
		ID: "e1", ContinuityID: "cont1", InWorldTime: "1042-01-15",
		Outcomes: []store.Outcome{
			{EntityID: "ch1", Field: "status", ToValue: "crowned"},
			{EntityID: "ch1", Field: "name", ToValue: "Queen Maeve"},
		},
		CreatedAt: base, ModifiedAt: base,
	}
	putEvent(t, st, trigger)

	propagator := testPropagator(st)
	first, err := propagator.Propagate(ctx, trigger)
	if err != nil {
		t.Fatalf("first Propagate() error: %v", err)
	}
	second, err := propagator.Propagate(ctx, trigger)
	if err != nil {
		t.Fatalf("second Propagate() error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("propagation not idempotent:\nfirst  %+v\nsecond %+v", first, second)
	}

	entity, _ := st.GetEntity(ctx, "ch1")
	if entity.Name != "Queen Maeve" || entity.TypeFields["status"] != "crowned" {
		t.Fatalf("entity state = %+v", entity)
	}
}

func TestPropagateEmptyOutcomesIsNoOp(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	putContinuity(t, st, "cont1", "", "")

	trigger := store.Event{ID: "e1", ContinuityID: "cont1", InWorldTime: "1042-01-15"}
	result, err := testPropagator(st).Propagate(ctx, trigger)
	if err != nil {
		t.Fatalf("Propagate() error: %v", err)
	}
	if len(result.Applied) != 0 || len(result.Warnings) != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}
}

func TestPropagateBestEffortAggregation(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	putContinuity(t, st, "cont1", "", "")
	putCharacter(t, st, "ch1", "Maeve")

	undated := store.Event{
		ID: "e0", ContinuityID: "cont1", InWorldTime: "",
		Outcomes:  []store.Outcome{{EntityID: "ch1", Field: "location", ToValue: "Nowhere"}},
		CreatedAt: base, ModifiedAt: base,
	}
	putEvent(t, st, undated)

	trigger := store.Event{
		ID: "e1", ContinuityID: "cont1", InWorldTime: "1042-01-15",
		Outcomes: []store.Outcome{
			{EntityID: "ch1", Field: "status", ToValue: "crowned"},     // applies
			{EntityID: "ghost", Field: "status", ToValue: "haunting"},  // entity missing
			{EntityID: "ch1", Field: "altitude", ToValue: "high"},      // invalid field
			{EntityID: "ch1", Field: "name", ToValue: "   "},           // rename validation fails
		},
		CreatedAt: base, ModifiedAt: base,
	}
	putEvent(t, st, trigger)

	result, err := testPropagator(st).Propagate(ctx, trigger)
	if err != nil {
		t.Fatalf("Propagate() error: %v", err)
	}

	if len(result.Applied) != 1 || result.Applied[0].Field != "status" {
		t.Fatalf("applied = %+v, want only status", result.Applied)
	}
	if len(result.Warnings) != 3 {
		t.Fatalf("warnings = %v, want 3", result.Warnings)
	}

	var sawMissing, sawInvalid, sawRename bool
	for _, w := range result.Warnings {
		switch {
		case strings.Contains(w, "ghost"):
			sawMissing = true
		case strings.Contains(w, "altitude"):
			sawInvalid = true
		case strings.Contains(w, "name"):
			sawRename = true
		}
	}
	if !sawMissing || !sawInvalid || !sawRename {
		t.Fatalf("warnings missing expected entries: %v", result.Warnings)
	}

	// The valid pair was still applied despite the failures around it.
	entity, _ := st.GetEntity(ctx, "ch1")
	if entity.TypeFields["status"] != "crowned" {
		t.Fatalf("status = %q, want crowned", entity.TypeFields["status"])
	}
	if entity.Name != "Maeve" {
		t.Fatalf("name mutated despite failed rename: %q", entity.Name)
	}
}

func TestPropagateSkipsPairWithOnlyUndatedClaims(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	putContinuity(t, st, "cont1", "", "")
	putCharacter(t, st, "ch1", "Maeve")

	trigger := store.Event{
		ID: "e1", ContinuityID: "cont1", InWorldTime: "",
		Outcomes:  []store.Outcome{{EntityID: "ch1", Field: "status", ToValue: "crowned"}},
		CreatedAt: base, ModifiedAt: base,
	}
	putEvent(t, st, trigger)

	result, err := testPropagator(st).Propagate(ctx, trigger)
	if err != nil {
		t.Fatalf("Propagate() error: %v", err)
	}
	if len(result.Applied) != 0 {
		t.Fatalf("applied = %+v, want none", result.Applied)
	}
	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], "no events with inWorldTime") {
		t.Fatalf("warnings = %v", result.Warnings)
	}

	entity, _ := st.GetEntity(ctx, "ch1")
	if entity.TypeFields["status"] != "" {
		t.Fatalf("status mutated: %q", entity.TypeFields["status"])
	}
}

func TestPropagateSeesAncestorEvents(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	putContinuity(t, st, "root", "", "")
	putCharacter(t, st, "ch1", "Maeve")
	anchor := store.Event{
		ID: "r1", ContinuityID: "root", InWorldTime: "1042-06-01",
		Outcomes:  []store.Outcome{{EntityID: "ch1", Field: "status", ToValue: "exiled"}},
		CreatedAt: base, ModifiedAt: base,
	}
	putEvent(t, st, anchor)
	putContinuity(t, st, "branch", "root", "r1")

	trigger := store.Event{
		ID: "b1", ContinuityID: "branch", InWorldTime: "1042-03-01",
		Outcomes:  []store.Outcome{{EntityID: "ch1", Field: "status", ToValue: "pardoned"}},
		CreatedAt: base, ModifiedAt: base,
	}
	putEvent(t, st, trigger)

	result, err := testPropagator(st).Propagate(ctx, trigger)
	if err != nil {
		t.Fatalf("Propagate() error: %v", err)
	}
	// The inherited root event sits later in world time and wins.
	if len(result.Applied) != 1 || result.Applied[0].EventID != "r1" || result.Applied[0].Value != "exiled" {
		t.Fatalf("applied = %+v, want exiled from r1", result.Applied)
	}
}
