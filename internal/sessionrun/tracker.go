// Package sessionrun manages the live session pointer for each campaign.
// At most one session per campaign is running at a time, and the pointer
// survives process crashes because it lives in the store, not in memory.
package sessionrun

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"timewright/internal/apperr"
	"timewright/internal/bus"
	"timewright/internal/store"
)

// Tracker starts and ends session runs against the store's pointer table.
type Tracker struct {
	store  store.Store
	bus    *bus.Bus
	logger *slog.Logger
	clock  func() time.Time
}

func NewTracker(st store.Store, b *bus.Bus, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		store:  st,
		bus:    b,
		logger: logger,
		clock:  time.Now,
	}
}

// Start acquires the run pointer for a campaign. Starting the session that
// already holds the pointer is a no-op returning the existing pointer, so a
// client retrying after a crash converges instead of erroring.
func (t *Tracker) Start(ctx context.Context, campaignID, sessionID string) (store.ActiveSessionRun, error) {
	if strings.TrimSpace(campaignID) == "" {
		return store.ActiveSessionRun{}, apperr.Validation("campaign id is required")
	}
	if strings.TrimSpace(sessionID) == "" {
		return store.ActiveSessionRun{}, apperr.Validation("session id is required")
	}

	if _, err := t.store.GetEntity(ctx, campaignID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.ActiveSessionRun{}, apperr.NotFound("campaign %q not found", campaignID)
		}
		return store.ActiveSessionRun{}, apperr.Repository(err, "loading campaign")
	}

	session, err := t.store.GetEntity(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.ActiveSessionRun{}, apperr.NotFound("session %q not found", sessionID)
		}
		return store.ActiveSessionRun{}, apperr.Repository(err, "loading session")
	}
	if session.Kind != store.KindSession {
		return store.ActiveSessionRun{}, apperr.InvalidOperation("entity %q is a %s, not a session", sessionID, session.Kind)
	}
	if session.CampaignID != campaignID {
		return store.ActiveSessionRun{}, apperr.InvalidOperation("session %q belongs to campaign %q", sessionID, session.CampaignID)
	}
	if session.HasEnded() {
		return store.ActiveSessionRun{}, apperr.InvalidOperation("session %q has already ended", sessionID)
	}

	run, err := t.store.AcquireSessionRun(ctx, store.ActiveSessionRun{
		CampaignID: campaignID,
		SessionID:  sessionID,
		StartedAt:  t.clock(),
	})
	if err != nil {
		var conflict *store.SessionRunConflictError
		if errors.As(err, &conflict) {
			return store.ActiveSessionRun{}, apperr.Conflict("session %q is already running for campaign %q", conflict.HolderSessionID, campaignID)
		}
		return store.ActiveSessionRun{}, apperr.Repository(err, "acquiring session run")
	}

	t.logger.Info("session run started",
		slog.String("campaign_id", run.CampaignID),
		slog.String("session_id", run.SessionID),
	)
	t.publish(ctx, bus.TopicSessionRunStarted, run)
	return run, nil
}

// End releases the run pointer and stamps the session entity with its end
// time and duration.
func (t *Tracker) End(ctx context.Context, campaignID, sessionID string, durationSeconds int64) error {
	if strings.TrimSpace(campaignID) == "" {
		return apperr.Validation("campaign id is required")
	}
	if strings.TrimSpace(sessionID) == "" {
		return apperr.Validation("session id is required")
	}
	if durationSeconds < 0 {
		return apperr.Validation("duration must not be negative")
	}

	endedAt := t.clock()
	if err := t.store.ReleaseSessionRun(ctx, campaignID, sessionID, endedAt, durationSeconds); err != nil {
		if errors.Is(err, store.ErrNoActiveRun) {
			return apperr.InvalidOperation("no session is running for campaign %q", campaignID)
		}
		var conflict *store.SessionRunConflictError
		if errors.As(err, &conflict) {
			return apperr.Conflict("session %q holds the run for campaign %q", conflict.HolderSessionID, campaignID)
		}
		return apperr.Repository(err, "releasing session run")
	}

	t.logger.Info("session run ended",
		slog.String("campaign_id", campaignID),
		slog.String("session_id", sessionID),
		slog.Int64("duration_seconds", durationSeconds),
	)
	t.publish(ctx, bus.TopicSessionRunEnded, store.ActiveSessionRun{CampaignID: campaignID, SessionID: sessionID})
	return nil
}

// Status reports the live run for a campaign. A nil run with a nil error
// means the campaign is idle.
func (t *Tracker) Status(ctx context.Context, campaignID string) (*store.ActiveSessionRun, error) {
	if strings.TrimSpace(campaignID) == "" {
		return nil, apperr.Validation("campaign id is required")
	}
	run, err := t.store.GetSessionRun(ctx, campaignID)
	if err != nil {
		return nil, apperr.Repository(err, "loading session run")
	}
	return run, nil
}

func (t *Tracker) publish(ctx context.Context, topic string, run store.ActiveSessionRun) {
	if t.bus != nil {
		t.bus.Publish(ctx, bus.Notification{
			Topic:    topic,
			RecordID: run.SessionID,
			Detail:   map[string]string{"campaign_id": run.CampaignID},
		})
	}
}
