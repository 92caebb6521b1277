// Package store defines the persistence contract for timewright records.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// ErrNoActiveRun indicates a release was attempted for a campaign with no
// live session run.
var ErrNoActiveRun = errors.New("no active session run")

// SessionRunConflictError reports that a campaign's run pointer is held by a
// different session.
type SessionRunConflictError struct {
	HolderSessionID string
}

func (e *SessionRunConflictError) Error() string {
	return fmt.Sprintf("session %s is already active for this campaign", e.HolderSessionID)
}

// Store persists entities, events, continuities, drifts, and session-run
// pointers in a single SQL database.
type Store interface {
	Close(ctx context.Context) error
	EnsureSchema(ctx context.Context) error

	PutEntity(ctx context.Context, e Entity) error
	GetEntity(ctx context.Context, id string) (Entity, error)
	DeleteEntity(ctx context.Context, id string) error
	ListEntities(ctx context.Context, filter EntityFilter) ([]Entity, error)

	PutEvent(ctx context.Context, e Event) error
	GetEvent(ctx context.Context, id string) (Event, error)
	DeleteEvent(ctx context.Context, id string) error
	// ListEventsByContinuity returns events whose continuity_id matches,
	// ordered by in-world time then creation time, up to limit rows.
	ListEventsByContinuity(ctx context.Context, continuityID string, limit int) ([]Event, error)
	CountEventsByContinuity(ctx context.Context, continuityID string) (int, error)

	PutContinuity(ctx context.Context, c Continuity) error
	GetContinuity(ctx context.Context, id string) (Continuity, error)
	DeleteContinuity(ctx context.Context, id string) error
	ListContinuities(ctx context.Context, worldID string) ([]Continuity, error)

	PutDrift(ctx context.Context, d Drift) error
	GetDrift(ctx context.Context, id string) (Drift, error)
	// FindUnresolvedDrift returns the open drift for (entityID, field),
	// or ErrNotFound when none exists.
	FindUnresolvedDrift(ctx context.Context, entityID, field string) (Drift, error)
	ListDrifts(ctx context.Context, filter DriftFilter) ([]Drift, error)

	// AcquireSessionRun atomically installs the run pointer for its campaign.
	// When the pointer is free or already held by run.SessionID, the call
	// succeeds and returns the current pointer. When another session holds
	// it, the call fails with SessionRunConflictError and changes nothing.
	AcquireSessionRun(ctx context.Context, run ActiveSessionRun) (ActiveSessionRun, error)
	// ReleaseSessionRun deletes the pointer and writes the session entity's
	// terminal fields in one transaction. Fails with ErrNoActiveRun when no
	// pointer exists, SessionRunConflictError when another session holds it.
	ReleaseSessionRun(ctx context.Context, campaignID, sessionID string, endedAt time.Time, durationSeconds int64) error
	// GetSessionRun returns the live pointer for a campaign, nil when none.
	GetSessionRun(ctx context.Context, campaignID string) (*ActiveSessionRun, error)
}
