// Package continuity manages the branching timeline records of a world.
package continuity

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

// Service validates and persists continuity operations. Branch linkage is
// fixed at creation; only name and description may change afterwards.
type Service struct {
	store  store.Store
	bus    *bus.Bus
	logger *slog.Logger
	clock  func() time.Time
	newID  func() (string, error)
}

func NewService(st store.Store, b *bus.Bus, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  st,
		bus:    b,
		logger: logger,
		clock:  time.Now,
		newID:  id.New,
	}
}

type CreateRequest struct {
	Name        string
	WorldID     string
	Description string
}

// Create adds a root continuity for a world.
func (s *Service) Create(ctx context.Context, req CreateRequest) (store.Continuity, error) {
	if strings.TrimSpace(req.Name) == "" {
		return store.Continuity{}, apperr.Validation("continuity name is required")
	}
	if strings.TrimSpace(req.WorldID) == "" {
		return store.Continuity{}, apperr.Validation("world id is required")
	}

	contID, err := s.newID()
	if err != nil {
		return store.Continuity{}, apperr.Repository(err, "generating continuity id")
	}

	now := s.clock()
	cont := store.Continuity{
		ID:          contID,
		WorldID:     req.WorldID,
		Name:        req.Name,
		Description: req.Description,
		CreatedAt:   now,
		ModifiedAt:  now,
	}
	if err := s.store.PutContinuity(ctx, cont); err != nil {
		return store.Continuity{}, apperr.Repository(err, "saving continuity")
	}

	s.publish(ctx, bus.TopicContinuityCreated, cont.ID)
	return cont, nil
}

type BranchRequest struct {
	Name               string
	ParentID           string
	BranchPointEventID string
	Description        string
}

// Branch forks a new continuity off a parent at a specific event. The branch
// point must belong to the parent and carry a non-empty in-world time, and
// the parent's ancestry must be acyclic before it can be extended.
func (s *Service) Branch(ctx context.Context, req BranchRequest) (store.Continuity, error) {
	if strings.TrimSpace(req.Name) == "" {
		return store.Continuity{}, apperr.Validation("continuity name is required")
	}
	if strings.TrimSpace(req.ParentID) == "" {
		return store.Continuity{}, apperr.Validation("parent continuity id is required")
	}
	if strings.TrimSpace(req.BranchPointEventID) == "" {
		return store.Continuity{}, apperr.Validation("branch point event id is required")
	}

	parent, err := s.store.GetContinuity(ctx, req.ParentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Continuity{}, apperr.NotFound("parent continuity %q not found", req.ParentID)
		}
		return store.Continuity{}, apperr.Repository(err, "loading parent continuity")
	}

	branchPoint, err := s.store.GetEvent(ctx, req.BranchPointEventID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Continuity{}, apperr.NotFound("branch point event %q not found", req.BranchPointEventID)
		}
		return store.Continuity{}, apperr.Repository(err, "loading branch point event")
	}
	if branchPoint.ContinuityID != parent.ID {
		return store.Continuity{}, apperr.Validation("branch point event %q does not belong to continuity %q", branchPoint.ID, parent.ID)
	}
	if strings.TrimSpace(branchPoint.InWorldTime) == "" {
		return store.Continuity{}, apperr.Validation("branch point event %q has no in-world time", branchPoint.ID)
	}

	if err := timeline.ValidateAncestry(ctx, s.store, parent.ID); err != nil {
		return store.Continuity{}, err
	}

	contID, err := s.newID()
	if err != nil {
		return store.Continuity{}, apperr.Repository(err, "generating continuity id")
	}

	now := s.clock()
	cont := store.Continuity{
		ID:                 contID,
		WorldID:            parent.WorldID,
		Name:               req.Name,
		Description:        req.Description,
		BranchedFromID:     parent.ID,
		BranchPointEventID: branchPoint.ID,
		CreatedAt:          now,
		ModifiedAt:         now,
	}
	if err := s.store.PutContinuity(ctx, cont); err != nil {
		return store.Continuity{}, apperr.Repository(err, "saving continuity")
	}

	s.publish(ctx, bus.TopicContinuityCreated, cont.ID)
	return cont, nil
}

// Rename changes the display name and bumps modified_at. Branch linkage is
// never touched.
func (s *Service) Rename(ctx context.Context, contID, name string) (store.Continuity, error) {
	if strings.TrimSpace(name) == "" {
		return store.Continuity{}, apperr.Validation("continuity name is required")
	}
	return s.mutate(ctx, contID, func(cont *store.Continuity) {
		cont.Name = name
	})
}

// UpdateDescription changes the description and bumps modified_at.
func (s *Service) UpdateDescription(ctx context.Context, contID, description string) (store.Continuity, error) {
	return s.mutate(ctx, contID, func(cont *store.Continuity) {
		cont.Description = description
	})
}

func (s *Service) mutate(ctx context.Context, contID string, apply func(*store.Continuity)) (store.Continuity, error) {
	cont, err := s.store.GetContinuity(ctx, contID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Continuity{}, apperr.NotFound("continuity %q not found", contID)
		}
		return store.Continuity{}, apperr.Repository(err, "loading continuity")
	}

	apply(&cont)
	cont.ModifiedAt = s.clock()

	if err := s.store.PutContinuity(ctx, cont); err != nil {
		return store.Continuity{}, apperr.Repository(err, "saving continuity")
	}

	s.publish(ctx, bus.TopicContinuityUpdated, cont.ID)
	return cont, nil
}

// Delete removes a continuity when nothing references it. Referencing events
// or campaigns block deletion with a conflict naming the count.
func (s *Service) Delete(ctx context.Context, contID string) error {
	if _, err := s.store.GetContinuity(ctx, contID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("continuity %q not found", contID)
		}
		return apperr.Repository(err, "loading continuity")
	}

	eventCount, err := s.store.CountEventsByContinuity(ctx, contID)
	if err != nil {
		return apperr.Repository(err, "counting events")
	}
	if eventCount > 0 {
		return apperr.Conflict("continuity %q has %d referencing events", contID, eventCount)
	}

	campaigns, err := s.store.ListEntities(ctx, store.EntityFilter{ContinuityID: contID, Kind: store.KindCampaign})
	if err != nil {
		return apperr.Repository(err, "listing campaigns")
	}
	if len(campaigns) > 0 {
		return apperr.Conflict("continuity %q has %d referencing campaigns", contID, len(campaigns))
	}

	if err := s.store.DeleteContinuity(ctx, contID); err != nil {
		return apperr.Repository(err, "deleting continuity")
	}

	s.publish(ctx, bus.TopicContinuityDeleted, contID)
	return nil
}

// Get returns one continuity record.
func (s *Service) Get(ctx context.Context, contID string) (store.Continuity, error) {
	cont, err := s.store.GetContinuity(ctx, contID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Continuity{}, apperr.NotFound("continuity %q not found", contID)
		}
		return store.Continuity{}, apperr.Repository(err, "loading continuity")
	}
	return cont, nil
}

// List returns a world's continuities in creation order.
func (s *Service) List(ctx context.Context, worldID string) ([]store.Continuity, error) {
	continuities, err := s.store.ListContinuities(ctx, worldID)
	if err != nil {
		return nil, apperr.Repository(err, "listing continuities")
	}
	return continuities, nil
}

func (s *Service) publish(ctx context.Context, topic, recordID string) {
	if s.bus != nil {
		s.bus.Publish(ctx, bus.Notification{Topic: topic, RecordID: recordID})
	}
}
