package timeline

import "timewright/internal/store"

// Winner is the outcome that currently decides an (entity, field) pair,
// together with the event that declared it.
type Winner struct {
	Outcome store.Outcome
	EventID string
	// InWorldTime is the declaring event's ordering key.
	InWorldTime string
}

// ResolveWinner selects the canonical outcome for (entityID, field) among the
// given events. Only events with a non-empty in-world time contribute; among
// candidates the greatest (inWorldTime, createdAt, eventID) triple wins, so
// resolution is deterministic even when two events share an in-world time.
func ResolveWinner(events []store.Event, entityID, field string) (Winner, bool) {
	var winner Winner
	var winnerEvent store.Event
	found := false

	for _, event := range events {
		if event.InWorldTime == "" {
			continue
		}
		for _, outcome := range event.Outcomes {
			if outcome.EntityID != entityID || outcome.Field != field {
				continue
			}
			if !found || laterEvent(event, winnerEvent) {
				winner = Winner{Outcome: outcome, EventID: event.ID, InWorldTime: event.InWorldTime}
				winnerEvent = event
				found = true
			}
		}
	}
	return winner, found
}

// laterEvent reports whether a sorts strictly after b in resolution order.
func laterEvent(a, b store.Event) bool {
	if a.InWorldTime != b.InWorldTime {
		return a.InWorldTime > b.InWorldTime
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

// CanonicalState derives every field the timeline decides for entityID:
// the union of all (field -> winning outcome) pairs across the events.
func CanonicalState(events []store.Event, entityID string) map[string]Winner {
	fields := make(map[string]struct{})
	for _, event := range events {
		if event.InWorldTime == "" {
			continue
		}
		for _, outcome := range event.Outcomes {
			if outcome.EntityID == entityID {
				fields[outcome.Field] = struct{}{}
			}
		}
	}

	state := make(map[string]Winner, len(fields))
	for field := range fields {
		if winner, ok := ResolveWinner(events, entityID, field); ok {
			state[field] = winner
		}
	}
	return state
}
