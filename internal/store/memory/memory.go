// Package memory provides an in-memory Store used by tests and dry runs.
// It mirrors the semantics of the SQL backends, including the atomic
// session-run pointer, but persists nothing.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"timewright/internal/store"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	mu           sync.Mutex
	entities     map[string]store.Entity
	events       map[string]store.Event
	continuities map[string]store.Continuity
	drifts       map[string]store.Drift
	runs         map[string]store.ActiveSessionRun
}

func New() *Store {
	return &Store{
		entities:     make(map[string]store.Entity),
		events:       make(map[string]store.Event),
		continuities: make(map[string]store.Continuity),
		drifts:       make(map[string]store.Drift),
		runs:         make(map[string]store.ActiveSessionRun),
	}
}

func (s *Store) Close(ctx context.Context) error {
	return nil
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	return nil
}

func (s *Store) PutEntity(ctx context.Context, e store.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[e.ID] = copyEntity(e)
	return nil
}

func (s *Store) GetEntity(ctx context.Context, id string) (store.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[id]
	if !ok {
		return store.Entity{}, store.ErrNotFound
	}
	return copyEntity(e), nil
}

func (s *Store) DeleteEntity(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entities[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.entities, id)
	return nil
}

func (s *Store) ListEntities(ctx context.Context, filter store.EntityFilter) ([]store.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []store.Entity
	for _, e := range s.entities {
		if filter.WorldID != "" && e.WorldID != filter.WorldID {
			continue
		}
		if filter.CampaignID != "" && e.CampaignID != filter.CampaignID {
			continue
		}
		if filter.ContinuityID != "" && e.ContinuityID != filter.ContinuityID {
			continue
		}
		if filter.Kind != "" && e.Kind != filter.Kind {
			continue
		}
		out = append(out, copyEntity(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	if out == nil {
		out = []store.Entity{}
	}
	return out, nil
}

func (s *Store) PutEvent(ctx context.Context, e store.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[e.ID] = copyEvent(e)
	return nil
}

func (s *Store) GetEvent(ctx context.Context, id string) (store.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return store.Event{}, store.ErrNotFound
	}
	return copyEvent(e), nil
}

func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.events, id)
	return nil
}

func (s *Store) ListEventsByContinuity(ctx context.Context, continuityID string, limit int) ([]store.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []store.Event
	for _, e := range s.events {
		if e.ContinuityID != continuityID {
			continue
		}
		out = append(out, copyEvent(e))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].InWorldTime != out[j].InWorldTime {
			return strings.Compare(out[i].InWorldTime, out[j].InWorldTime) < 0
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	if out == nil {
		out = []store.Event{}
	}
	return out, nil
}

func (s *Store) CountEventsByContinuity(ctx context.Context, continuityID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, e := range s.events {
		if e.ContinuityID == continuityID {
			count++
		}
	}
	return count, nil
}

func (s *Store) PutContinuity(ctx context.Context, c store.Continuity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.continuities[c.ID] = c
	return nil
}

func (s *Store) GetContinuity(ctx context.Context, id string) (store.Continuity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.continuities[id]
	if !ok {
		return store.Continuity{}, store.ErrNotFound
	}
	return c, nil
}

func (s *Store) DeleteContinuity(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.continuities[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.continuities, id)
	return nil
}

func (s *Store) ListContinuities(ctx context.Context, worldID string) ([]store.Continuity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []store.Continuity
	for _, c := range s.continuities {
		if worldID != "" && c.WorldID != worldID {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if out == nil {
		out = []store.Continuity{}
	}
	return out, nil
}

func (s *Store) PutDrift(ctx context.Context, d store.Drift) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drifts[d.ID] = copyDrift(d)
	return nil
}

func (s *Store) GetDrift(ctx context.Context, id string) (store.Drift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drifts[id]
	if !ok {
		return store.Drift{}, store.ErrNotFound
	}
	return copyDrift(d), nil
}

func (s *Store) FindUnresolvedDrift(ctx context.Context, entityID, field string) (store.Drift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range s.drifts {
		if d.EntityID == entityID && d.Field == field && d.ResolvedAt == nil {
			return copyDrift(d), nil
		}
	}
	return store.Drift{}, store.ErrNotFound
}

func (s *Store) ListDrifts(ctx context.Context, filter store.DriftFilter) ([]store.Drift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []store.Drift
	for _, d := range s.drifts {
		if filter.EntityID != "" && d.EntityID != filter.EntityID {
			continue
		}
		if filter.ContinuityID != "" && d.ContinuityID != filter.ContinuityID {
			continue
		}
		if filter.Unresolved && d.ResolvedAt != nil {
			continue
		}
		out = append(out, copyDrift(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DetectedAt.Before(out[j].DetectedAt) })
	if out == nil {
		out = []store.Drift{}
	}
	return out, nil
}

func (s *Store) AcquireSessionRun(ctx context.Context, run store.ActiveSessionRun) (store.ActiveSessionRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if held, ok := s.runs[run.CampaignID]; ok {
		if held.SessionID != run.SessionID {
			return store.ActiveSessionRun{}, &store.SessionRunConflictError{HolderSessionID: held.SessionID}
		}
		return held, nil
	}
	s.runs[run.CampaignID] = run
	return run, nil
}

func (s *Store) ReleaseSessionRun(ctx context.Context, campaignID, sessionID string, endedAt time.Time, durationSeconds int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	held, ok := s.runs[campaignID]
	if !ok {
		return store.ErrNoActiveRun
	}
	if held.SessionID != sessionID {
		return &store.SessionRunConflictError{HolderSessionID: held.SessionID}
	}

	session, ok := s.entities[sessionID]
	if !ok {
		return store.ErrNotFound
	}
	ended := endedAt
	duration := durationSeconds
	session.EndedAt = &ended
	session.DurationSeconds = &duration
	s.entities[sessionID] = session
	delete(s.runs, campaignID)
	return nil
}

func (s *Store) GetSessionRun(ctx context.Context, campaignID string) (*store.ActiveSessionRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	held, ok := s.runs[campaignID]
	if !ok {
		return nil, nil
	}
	run := held
	return &run, nil
}

func copyEntity(e store.Entity) store.Entity {
	out := e
	if e.TypeFields != nil {
		out.TypeFields = make(map[string]string, len(e.TypeFields))
		for k, v := range e.TypeFields {
			out.TypeFields[k] = v
		}
	}
	if e.EndedAt != nil {
		ended := *e.EndedAt
		out.EndedAt = &ended
	}
	if e.DurationSeconds != nil {
		duration := *e.DurationSeconds
		out.DurationSeconds = &duration
	}
	return out
}

func copyEvent(e store.Event) store.Event {
	out := e
	if e.InvolvedEntityIDs != nil {
		out.InvolvedEntityIDs = append([]string(nil), e.InvolvedEntityIDs...)
	}
	if e.Outcomes != nil {
		out.Outcomes = append([]store.Outcome(nil), e.Outcomes...)
	}
	return out
}

func copyDrift(d store.Drift) store.Drift {
	out := d
	if d.ResolvedAt != nil {
		resolved := *d.ResolvedAt
		out.ResolvedAt = &resolved
	}
	return out
}
