// Package drift compares an entity's stored fields against the values its
// timeline implies and records each divergence. A drift record stays open
// until the two sides agree again or a GM resolves it by hand.
package drift

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"timewright/internal/apperr"
	"timewright/internal/id"
	"timewright/internal/store"
	"timewright/internal/timeline"
)

// Detector runs drift checks and manages the resulting records.
type Detector struct {
	store  store.Store
	logger *slog.Logger
	clock  func() time.Time
	newID  func() (string, error)
}

func NewDetector(st store.Store, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		store:  st,
		logger: logger,
		clock:  time.Now,
		newID:  id.New,
	}
}

// CheckEntity compares one entity against the canonical state of a continuity
// and returns the drifts that remain open afterwards. Existing open drifts are
// updated in place when values move, and auto-resolved when the entity catches
// up with its timeline.
func (d *Detector) CheckEntity(ctx context.Context, continuityID, entityID string) ([]store.Drift, error) {
	if strings.TrimSpace(continuityID) == "" {
		return nil, apperr.Validation("continuity id is required")
	}
	if strings.TrimSpace(entityID) == "" {
		return nil, apperr.Validation("entity id is required")
	}

	entity, err := d.store.GetEntity(ctx, entityID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("entity %q not found", entityID)
		}
		return nil, apperr.Repository(err, "loading entity")
	}

	events, err := timeline.VisibleEvents(ctx, d.store, continuityID)
	if err != nil {
		return nil, err
	}

	open := make([]store.Drift, 0)
	for field, winner := range timeline.CanonicalState(events, entityID) {
		current, ok := timeline.FieldValue(entity, field)
		if !ok {
			// The timeline claims a field this entity kind does not carry.
			// Propagation would have warned already; nothing to diff.
			continue
		}

		drift, err := d.reconcile(ctx, continuityID, entity.ID, field, winner.Outcome.ToValue, current)
		if err != nil {
			return nil, err
		}
		if drift != nil {
			open = append(open, *drift)
		}
	}
	return open, nil
}

// reconcile brings the stored drift record for (entityID, field) in line with
// the observed pair of values. It returns the open record, or nil when the
// values agree.
func (d *Detector) reconcile(ctx context.Context, continuityID, entityID, field, derived, current string) (*store.Drift, error) {
	existing, err := d.store.FindUnresolvedDrift(ctx, entityID, field)
	haveExisting := err == nil
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Repository(err, "loading drift")
	}

	if derived == current {
		if !haveExisting {
			return nil, nil
		}
		now := d.clock()
		existing.ResolvedAt = &now
		if err := d.store.PutDrift(ctx, existing); err != nil {
			return nil, apperr.Repository(err, "resolving drift")
		}
		d.logger.Info("drift auto-resolved",
			slog.String("entity_id", entityID),
			slog.String("field", field),
		)
		return nil, nil
	}

	if haveExisting {
		existing.ContinuityID = continuityID
		existing.EventDerivedValue = derived
		existing.CurrentValue = current
		existing.DetectedAt = d.clock()
		if err := d.store.PutDrift(ctx, existing); err != nil {
			return nil, apperr.Repository(err, "updating drift")
		}
		return &existing, nil
	}

	driftID, err := d.newID()
	if err != nil {
		return nil, apperr.Repository(err, "generating drift id")
	}
	created := store.Drift{
		ID:                driftID,
		EntityID:          entityID,
		ContinuityID:      continuityID,
		Field:             field,
		EventDerivedValue: derived,
		CurrentValue:      current,
		DetectedAt:        d.clock(),
	}
	if err := d.store.PutDrift(ctx, created); err != nil {
		return nil, apperr.Repository(err, "saving drift")
	}
	d.logger.Info("drift detected",
		slog.String("entity_id", entityID),
		slog.String("field", field),
		slog.String("derived", derived),
		slog.String("current", current),
	)
	return &created, nil
}

// ScanContinuity checks every entity mentioned by an outcome in the
// continuity's visible timeline and returns all drifts left open.
func (d *Detector) ScanContinuity(ctx context.Context, continuityID string) ([]store.Drift, error) {
	if strings.TrimSpace(continuityID) == "" {
		return nil, apperr.Validation("continuity id is required")
	}
	if _, err := d.store.GetContinuity(ctx, continuityID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("continuity %q not found", continuityID)
		}
		return nil, apperr.Repository(err, "loading continuity")
	}

	events, err := timeline.VisibleEvents(ctx, d.store, continuityID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	entityIDs := make([]string, 0)
	for _, event := range events {
		for _, outcome := range event.Outcomes {
			if _, ok := seen[outcome.EntityID]; ok {
				continue
			}
			seen[outcome.EntityID] = struct{}{}
			entityIDs = append(entityIDs, outcome.EntityID)
		}
	}

	open := make([]store.Drift, 0)
	for _, entityID := range entityIDs {
		drifts, err := d.CheckEntity(ctx, continuityID, entityID)
		if err != nil {
			if apperr.IsCode(err, apperr.CodeNotFound) {
				// Outcomes may reference entities deleted since; the scan
				// keeps going.
				continue
			}
			return nil, err
		}
		open = append(open, drifts...)
	}
	return open, nil
}

// List returns drift records matching the filter.
func (d *Detector) List(ctx context.Context, filter store.DriftFilter) ([]store.Drift, error) {
	drifts, err := d.store.ListDrifts(ctx, filter)
	if err != nil {
		return nil, apperr.Repository(err, "listing drifts")
	}
	return drifts, nil
}

// Resolve marks one drift record as handled.
func (d *Detector) Resolve(ctx context.Context, driftID string) (store.Drift, error) {
	drift, err := d.store.GetDrift(ctx, driftID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Drift{}, apperr.NotFound("drift %q not found", driftID)
		}
		return store.Drift{}, apperr.Repository(err, "loading drift")
	}
	if drift.Resolved() {
		return store.Drift{}, apperr.InvalidOperation("drift %q is already resolved", driftID)
	}

	now := d.clock()
	drift.ResolvedAt = &now
	if err := d.store.PutDrift(ctx, drift); err != nil {
		return store.Drift{}, apperr.Repository(err, "resolving drift")
	}
	return drift, nil
}
