// Package events records timeline events and triggers outcome propagation.
package events

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"timewright/internal/apperr"
	"timewright/internal/bus"
	"timewright/internal/id"
	"timewright/internal/store"
	"timewright/internal/timeline"
)

// Service owns the event write path. Saving an event with outcomes triggers
// a synchronous propagation pass; its warnings are part of the response so a
// GM sees every claim that could not be applied.
type Service struct {
	store      store.Store
	propagator *timeline.Propagator
	bus        *bus.Bus
	logger     *slog.Logger
	clock      func() time.Time
	newID      func() (string, error)
}

func NewService(st store.Store, propagator *timeline.Propagator, b *bus.Bus, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:      st,
		propagator: propagator,
		bus:        b,
		logger:     logger,
		clock:      time.Now,
		newID:      id.New,
	}
}

type RecordRequest struct {
	ContinuityID      string
	Name              string
	Description       string
	InWorldTime       string
	RealWorldAnchor   string
	LocationID        string
	InvolvedEntityIDs []string
	Outcomes          []store.Outcome
}

// Record creates an event and runs propagation for its outcomes.
func (s *Service) Record(ctx context.Context, req RecordRequest) (store.Event, timeline.Result, error) {
	if strings.TrimSpace(req.Name) == "" {
		return store.Event{}, timeline.Result{}, apperr.Validation("event name is required")
	}
	if strings.TrimSpace(req.ContinuityID) == "" {
		return store.Event{}, timeline.Result{}, apperr.Validation("continuity id is required")
	}

	cont, err := s.store.GetContinuity(ctx, req.ContinuityID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Event{}, timeline.Result{}, apperr.NotFound("continuity %q not found", req.ContinuityID)
		}
		return store.Event{}, timeline.Result{}, apperr.Repository(err, "loading continuity")
	}

	eventID, err := s.newID()
	if err != nil {
		return store.Event{}, timeline.Result{}, apperr.Repository(err, "generating event id")
	}

	now := s.clock()
	event := store.Event{
		ID:                eventID,
		WorldID:           cont.WorldID,
		ContinuityID:      cont.ID,
		Name:              req.Name,
		Description:       req.Description,
		InWorldTime:       req.InWorldTime,
		RealWorldAnchor:   req.RealWorldAnchor,
		LocationID:        req.LocationID,
		InvolvedEntityIDs: req.InvolvedEntityIDs,
		Outcomes:          req.Outcomes,
		CreatedAt:         now,
		ModifiedAt:        now,
	}
	if err := s.store.PutEvent(ctx, event); err != nil {
		return store.Event{}, timeline.Result{}, apperr.Repository(err, "saving event")
	}
	s.publish(ctx, bus.TopicEventCreated, event.ID)

	result, err := s.propagator.Propagate(ctx, event)
	if err != nil {
		return event, result, err
	}
	return event, result, nil
}

type UpdateRequest struct {
	EventID     string
	Name        *string
	Description *string
	InWorldTime *string
	// Outcomes replaces the stored list wholesale; it is never patched
	// element-wise.
	Outcomes        []store.Outcome
	ReplaceOutcomes bool
}

// Update mutates an event. Propagation re-runs when outcomes or the in-world
// time changed, since both feed winner resolution.
func (s *Service) Update(ctx context.Context, req UpdateRequest) (store.Event, timeline.Result, error) {
	event, err := s.store.GetEvent(ctx, req.EventID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Event{}, timeline.Result{}, apperr.NotFound("event %q not found", req.EventID)
		}
		return store.Event{}, timeline.Result{}, apperr.Repository(err, "loading event")
	}

	needsPropagation := false
	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return store.Event{}, timeline.Result{}, apperr.Validation("event name is required")
		}
		event.Name = *req.Name
	}
	if req.Description != nil {
		event.Description = *req.Description
	}
	if req.InWorldTime != nil && *req.InWorldTime != event.InWorldTime {
		event.InWorldTime = *req.InWorldTime
		needsPropagation = true
	}
	if req.ReplaceOutcomes {
		event.Outcomes = req.Outcomes
		needsPropagation = true
	}
	event.ModifiedAt = s.clock()

	if err := s.store.PutEvent(ctx, event); err != nil {
		return store.Event{}, timeline.Result{}, apperr.Repository(err, "saving event")
	}
	s.publish(ctx, bus.TopicEventUpdated, event.ID)

	if !needsPropagation {
		return event, timeline.Result{}, nil
	}

	result, err := s.propagator.Propagate(ctx, event)
	if err != nil {
		return event, result, err
	}
	return event, result, nil
}

// Get returns one event.
func (s *Service) Get(ctx context.Context, eventID string) (store.Event, error) {
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Event{}, apperr.NotFound("event %q not found", eventID)
		}
		return store.Event{}, apperr.Repository(err, "loading event")
	}
	return event, nil
}

// Timeline returns the events visible to a continuity in in-world order,
// including inherited ancestor events up to each branch point.
func (s *Service) Timeline(ctx context.Context, continuityID string) ([]store.Event, error) {
	return timeline.VisibleEvents(ctx, s.store, continuityID)
}

// CurrentState derives every field the continuity's timeline decides for an
// entity, each with the event that decided it.
func (s *Service) CurrentState(ctx context.Context, continuityID, entityID string) (map[string]timeline.Winner, error) {
	if strings.TrimSpace(entityID) == "" {
		return nil, apperr.Validation("entity id is required")
	}
	if _, err := s.store.GetEntity(ctx, entityID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("entity %q not found", entityID)
		}
		return nil, apperr.Repository(err, "loading entity")
	}

	events, err := timeline.VisibleEvents(ctx, s.store, continuityID)
	if err != nil {
		return nil, err
	}
	return timeline.CanonicalState(events, entityID), nil
}

// Delete removes an event. Events serving as a branch point for an existing
// continuity cannot be deleted.
func (s *Service) Delete(ctx context.Context, eventID string) error {
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("event %q not found", eventID)
		}
		return apperr.Repository(err, "loading event")
	}

	continuities, err := s.store.ListContinuities(ctx, event.WorldID)
	if err != nil {
		return apperr.Repository(err, "listing continuities")
	}
	for _, cont := range continuities {
		if cont.BranchPointEventID == event.ID {
			return apperr.Conflict("event %q is the branch point of continuity %q", event.ID, cont.ID)
		}
	}

	if err := s.store.DeleteEvent(ctx, eventID); err != nil {
		return apperr.Repository(err, "deleting event")
	}
	s.publish(ctx, bus.TopicEventDeleted, eventID)
	return nil
}

func (s *Service) publish(ctx context.Context, topic, recordID string) {
	if s.bus != nil {
		s.bus.Publish(ctx, bus.Notification{Topic: topic, RecordID: recordID})
	}
}
