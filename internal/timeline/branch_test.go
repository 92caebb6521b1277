package timeline

import (
	"context"
	"testing"
	"time"

	"timewright/internal/apperr"
	"timewright/internal/store"
	"timewright/internal/store/memory"
)

func putContinuity(t *testing.T, st *memory.Store, id, parentID, branchPointID string) {
	t.Helper()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	err := st.PutContinuity(context.Background(), store.Continuity{
		ID: id, WorldID: "w1", Name: id,
		BranchedFromID: parentID, BranchPointEventID: branchPointID,
		CreatedAt: now, ModifiedAt: now,
	})
	if err != nil {
		t.Fatalf("putting continuity %s: %v", id, err)
	}
}

func putEvent(t *testing.T, st *memory.Store, e store.Event) {
	t.Helper()
	if err := st.PutEvent(context.Background(), e); err != nil {
		t.Fatalf("putting event %s: %v", e.ID, err)
	}
}

func TestVisibleEventsUnionsAncestors(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	putContinuity(t, st, "root", "", "")
	putEvent(t, st, store.Event{ID: "e1", ContinuityID: "root", InWorldTime: "1042-01-01", CreatedAt: base, ModifiedAt: base})
	putEvent(t, st, store.Event{ID: "e2", ContinuityID: "root", InWorldTime: "1042-06-01", CreatedAt: base, ModifiedAt: base})
	putEvent(t, st, store.Event{ID: "e3", ContinuityID: "root", InWorldTime: "1043-01-01", CreatedAt: base, ModifiedAt: base})

	// Branch at e2: e3 happens after the fork and must not leak in.
	putContinuity(t, st, "branch", "root", "e2")
	putEvent(t, st, store.Event{ID: "b1", ContinuityID: "branch", InWorldTime: "1042-09-01", CreatedAt: base, ModifiedAt: base})

	events, err := VisibleEvents(ctx, st, "branch")
	if err != nil {
		t.Fatalf("VisibleEvents() error: %v", err)
	}

	got := make([]string, 0, len(events))
	for _, e := range events {
		got = append(got, e.ID)
	}
	want := []string{"e1", "e2", "b1"}
	if len(got) != len(want) {
		t.Fatalf("visible events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("visible events = %v, want %v", got, want)
		}
	}
}

func TestVisibleEventsNestedBranchTightensCap(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	putContinuity(t, st, "root", "", "")
	putEvent(t, st, store.Event{ID: "r1", ContinuityID: "root", InWorldTime: "1042-01-01", CreatedAt: base, ModifiedAt: base})
	putEvent(t, st, store.Event{ID: "r2", ContinuityID: "root", InWorldTime: "1042-06-01", CreatedAt: base, ModifiedAt: base})

	// mid forks early, at r1. Its own later event m1 sits past where the
	// grandchild forks off mid, so the grandchild sees it; but root events
	// after r1 stay invisible to both.
	putContinuity(t, st, "mid", "root", "r1")
	putEvent(t, st, store.Event{ID: "m1", ContinuityID: "mid", InWorldTime: "1042-03-01", CreatedAt: base, ModifiedAt: base})

	putContinuity(t, st, "leaf", "mid", "m1")

	events, err := VisibleEvents(ctx, st, "leaf")
	if err != nil {
		t.Fatalf("VisibleEvents() error: %v", err)
	}

	ids := map[string]bool{}
	for _, e := range events {
		ids[e.ID] = true
	}
	if !ids["r1"] || !ids["m1"] {
		t.Fatalf("expected r1 and m1 visible, got %v", ids)
	}
	if ids["r2"] {
		t.Fatalf("r2 is past the mid fork point and must not be visible")
	}
}

func TestVisibleEventsRejectsCycle(t *testing.T) {
	ctx := context.Background()
	st := memory.New()

	// Corrupted ancestry: a <-> b.
	putContinuity(t, st, "a", "b", "eb")
	putContinuity(t, st, "b", "a", "ea")
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	putEvent(t, st, store.Event{ID: "ea", ContinuityID: "a", InWorldTime: "1042-01-01", CreatedAt: base, ModifiedAt: base})
	putEvent(t, st, store.Event{ID: "eb", ContinuityID: "b", InWorldTime: "1042-01-01", CreatedAt: base, ModifiedAt: base})

	_, err := VisibleEvents(ctx, st, "a")
	if !apperr.IsCode(err, apperr.CodeConflict) {
		t.Fatalf("expected CONFLICT on cyclic ancestry, got %v", err)
	}

	if err := ValidateAncestry(ctx, st, "a"); !apperr.IsCode(err, apperr.CodeConflict) {
		t.Fatalf("expected CONFLICT from ValidateAncestry, got %v", err)
	}
}

func TestAncestorChain(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	putContinuity(t, st, "root", "", "")
	putEvent(t, st, store.Event{ID: "r1", ContinuityID: "root", InWorldTime: "1042-01-01", CreatedAt: base, ModifiedAt: base})
	putContinuity(t, st, "child", "root", "r1")

	chain, err := AncestorChain(ctx, st, "child")
	if err != nil {
		t.Fatalf("AncestorChain() error: %v", err)
	}
	if len(chain) != 2 || chain[0] != "child" || chain[1] != "root" {
		t.Fatalf("chain = %v, want [child root]", chain)
	}
}
