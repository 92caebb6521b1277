// Package timeline resolves conflicting event outcomes into canonical entity
// state across a continuity's visible history.
package timeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"timewright/internal/store"
)

// Applied records one winning value written to an entity.
type Applied struct {
	EntityID string
	Field    string
	Value    string
	EventID  string
}

// Result aggregates a propagation pass. Propagation is best-effort: per-pair
// failures are collected as warnings and never abort the pass.
type Result struct {
	Applied  []Applied
	Warnings []string
}

// Propagator recomputes canonical values for the (entity, field) pairs an
// event touches and writes the winners through the store.
type Propagator struct {
	store  store.Store
	logger *slog.Logger
}

func NewPropagator(st store.Store, logger *slog.Logger) *Propagator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Propagator{store: st, logger: logger}
}

type pair struct {
	entityID string
	field    string
}

// Propagate runs one pass for the triggering event. Only the pairs the event
// itself declares are recomputed; the winner for each pair is selected across
// every event visible to the continuity. Re-running on unchanged data applies
// the same values again, so the pass is idempotent and safe to trigger from
// both event-save and entity-update paths.
func (p *Propagator) Propagate(ctx context.Context, event store.Event) (Result, error) {
	var result Result
	if len(event.Outcomes) == 0 {
		return result, nil
	}

	events, err := VisibleEvents(ctx, p.store, event.ContinuityID)
	if err != nil {
		return result, fmt.Errorf("loading continuity events: %w", err)
	}

	seen := make(map[pair]bool)
	var pairs []pair
	for _, outcome := range event.Outcomes {
		key := pair{entityID: outcome.EntityID, field: outcome.Field}
		if !seen[key] {
			seen[key] = true
			pairs = append(pairs, key)
		}
	}

	for _, key := range pairs {
		if warning := p.propagatePair(ctx, events, key); warning != "" {
			result.Warnings = append(result.Warnings, warning)
			p.logger.Warn("outcome propagation skipped pair",
				slog.String("entity_id", key.entityID),
				slog.String("field", key.field),
				slog.String("reason", warning),
			)
			continue
		}
		winner, _ := ResolveWinner(events, key.entityID, key.field)
		result.Applied = append(result.Applied, Applied{
			EntityID: key.entityID,
			Field:    key.field,
			Value:    winner.Outcome.ToValue,
			EventID:  winner.EventID,
		})
	}
	return result, nil
}

// propagatePair applies the winner for one pair, returning a warning message
// instead of an error so a failure never stops the remaining pairs.
func (p *Propagator) propagatePair(ctx context.Context, events []store.Event, key pair) string {
	winner, ok := ResolveWinner(events, key.entityID, key.field)
	if !ok {
		return fmt.Sprintf("no events with inWorldTime found for %s.%s", key.entityID, key.field)
	}

	if strings.TrimSpace(key.entityID) == "" {
		return fmt.Sprintf("malformed entity id for field %s", key.field)
	}

	entity, err := p.store.GetEntity(ctx, key.entityID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Sprintf("entity %s not found for field %s", key.entityID, key.field)
		}
		return fmt.Sprintf("loading entity %s: %v", key.entityID, err)
	}

	if err := ApplyField(&entity, key.field, winner.Outcome.ToValue); err != nil {
		return fmt.Sprintf("applying %s to %s: %v", key.field, key.entityID, err)
	}

	if err := p.store.PutEntity(ctx, entity); err != nil {
		return fmt.Sprintf("saving entity %s: %v", key.entityID, err)
	}
	return ""
}
