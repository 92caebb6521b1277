package timeline

import (
	"context"
	"errors"
	"sort"

	"timewright/internal/apperr"
	"timewright/internal/store"
)

// MaxEventScan bounds how many events a single resolution pass will load per
// continuity. A scalability limit, not a correctness one.
const MaxEventScan = 10000

// VisibleEvents returns the events a continuity can see: its own events
// unioned with ancestor-chain events whose in-world time is at or before the
// branch point. A branch shares ancestor events by reference, so nothing is
// copied when a continuity forks.
//
// The walk carries a visited set and fails on cycles rather than looping.
func VisibleEvents(ctx context.Context, st store.Store, continuityID string) ([]store.Event, error) {
	cont, err := st.GetContinuity(ctx, continuityID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("continuity %q not found", continuityID)
		}
		return nil, apperr.Repository(err, "loading continuity %q", continuityID)
	}

	events, err := st.ListEventsByContinuity(ctx, continuityID, MaxEventScan)
	if err != nil {
		return nil, apperr.Repository(err, "loading events for continuity %q", continuityID)
	}

	visited := map[string]bool{continuityID: true}
	// cap is the tightest branch-point in-world time seen so far while
	// walking up; empty means unbounded (only before the first hop).
	cap := ""

	for cont.Branched() {
		parentID := cont.BranchedFromID
		if visited[parentID] {
			return nil, apperr.Conflict("continuity ancestry contains a cycle at %q", parentID)
		}
		visited[parentID] = true

		branchPoint, err := st.GetEvent(ctx, cont.BranchPointEventID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, apperr.NotFound("branch point event %q not found", cont.BranchPointEventID)
			}
			return nil, apperr.Repository(err, "loading branch point event %q", cont.BranchPointEventID)
		}
		if cap == "" || branchPoint.InWorldTime < cap {
			cap = branchPoint.InWorldTime
		}

		parentEvents, err := st.ListEventsByContinuity(ctx, parentID, MaxEventScan)
		if err != nil {
			return nil, apperr.Repository(err, "loading events for continuity %q", parentID)
		}
		for _, e := range parentEvents {
			if e.InWorldTime <= cap {
				events = append(events, e)
			}
		}

		cont, err = st.GetContinuity(ctx, parentID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, apperr.NotFound("continuity %q not found", parentID)
			}
			return nil, apperr.Repository(err, "loading continuity %q", parentID)
		}
	}

	sort.Slice(events, func(i, j int) bool {
		if events[i].InWorldTime != events[j].InWorldTime {
			return events[i].InWorldTime < events[j].InWorldTime
		}
		if !events[i].CreatedAt.Equal(events[j].CreatedAt) {
			return events[i].CreatedAt.Before(events[j].CreatedAt)
		}
		return events[i].ID < events[j].ID
	})

	if len(events) > MaxEventScan {
		events = events[:MaxEventScan]
	}
	return events, nil
}

// ValidateAncestry walks up from continuityID and fails if the chain revisits
// a node. Run at branch creation so a corrupted parent pointer can never be
// extended.
func ValidateAncestry(ctx context.Context, st store.Store, continuityID string) error {
	visited := map[string]bool{}
	current := continuityID

	for current != "" {
		if visited[current] {
			return apperr.Conflict("continuity ancestry contains a cycle at %q", current)
		}
		visited[current] = true

		cont, err := st.GetContinuity(ctx, current)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return apperr.NotFound("continuity %q not found", current)
			}
			return apperr.Repository(err, "loading continuity %q", current)
		}
		current = cont.BranchedFromID
	}
	return nil
}

// AncestorChain returns the continuity IDs from continuityID up to the root,
// inclusive, in walk order.
func AncestorChain(ctx context.Context, st store.Store, continuityID string) ([]string, error) {
	visited := map[string]bool{}
	var chain []string
	current := continuityID

	for current != "" {
		if visited[current] {
			return nil, apperr.Conflict("continuity ancestry contains a cycle at %q", current)
		}
		visited[current] = true
		chain = append(chain, current)

		cont, err := st.GetContinuity(ctx, current)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, apperr.NotFound("continuity %q not found", current)
			}
			return nil, apperr.Repository(err, "loading continuity %q", current)
		}
		current = cont.BranchedFromID
	}
	return chain, nil
}
