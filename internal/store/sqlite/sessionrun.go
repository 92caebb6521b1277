package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"timewright/internal/store"
)

// AcquireSessionRun relies on the campaign_id primary key for mutual
// exclusion: the conditional insert either installs the pointer or leaves the
// existing holder untouched, so two near-simultaneous starts cannot both win.
func (c *Client) AcquireSessionRun(ctx context.Context, run store.ActiveSessionRun) (store.ActiveSessionRun, error) {
	query := `
	INSERT INTO session_runs (campaign_id, session_id, started_at)
	VALUES (?, ?, ?)
	ON CONFLICT (campaign_id) DO NOTHING
	`

	result, err := c.db.ExecContext(ctx, query, run.CampaignID, run.SessionID, formatTime(run.StartedAt))
	if err != nil {
		return store.ActiveSessionRun{}, fmt.Errorf("acquiring session run: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return store.ActiveSessionRun{}, fmt.Errorf("acquiring session run: %w", err)
	}
	if affected == 1 {
		return run, nil
	}

	holder, err := c.GetSessionRun(ctx, run.CampaignID)
	if err != nil {
		return store.ActiveSessionRun{}, err
	}
	if holder == nil {
		// Pointer vanished between insert and read; treat as lost race.
		return store.ActiveSessionRun{}, fmt.Errorf("acquiring session run: pointer released concurrently")
	}
	if holder.SessionID != run.SessionID {
		return store.ActiveSessionRun{}, &store.SessionRunConflictError{HolderSessionID: holder.SessionID}
	}
	return *holder, nil
}

// ReleaseSessionRun deletes the pointer and records the session's terminal
// fields in a single transaction so the two facts cannot diverge.
func (c *Client) ReleaseSessionRun(ctx context.Context, campaignID, sessionID string, endedAt time.Time, durationSeconds int64) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("releasing session run: %w", err)
	}
	defer tx.Rollback()

	var holder string
	err = tx.QueryRowContext(ctx, `SELECT session_id FROM session_runs WHERE campaign_id = ?`, campaignID).Scan(&holder)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNoActiveRun
		}
		return fmt.Errorf("reading session run: %w", err)
	}
	if holder != sessionID {
		return &store.SessionRunConflictError{HolderSessionID: holder}
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE entities SET ended_at = ?, duration_seconds = ?, modified_at = ? WHERE id = ?`,
		formatTime(endedAt), durationSeconds, formatTime(endedAt), sessionID,
	)
	if err != nil {
		return fmt.Errorf("writing session terminal fields: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("writing session terminal fields: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM session_runs WHERE campaign_id = ?`, campaignID); err != nil {
		return fmt.Errorf("clearing session run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("releasing session run: %w", err)
	}
	return nil
}

func (c *Client) GetSessionRun(ctx context.Context, campaignID string) (*store.ActiveSessionRun, error) {
	var run store.ActiveSessionRun
	var startedAt string

	err := c.db.QueryRowContext(ctx,
		`SELECT campaign_id, session_id, started_at FROM session_runs WHERE campaign_id = ?`,
		campaignID,
	).Scan(&run.CampaignID, &run.SessionID, &startedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting session run: %w", err)
	}

	if run.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	return &run, nil
}
