package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"timewright/internal/store"
)

// AcquireSessionRun performs the conditional insert against the campaign_id
// primary key, so concurrent starts for the same campaign serialize in the
// database rather than in this process.
func (c *Client) AcquireSessionRun(ctx context.Context, run store.ActiveSessionRun) (store.ActiveSessionRun, error) {
	query := `
	INSERT INTO session_runs (campaign_id, session_id, started_at)
	VALUES ($1, $2, $3)
	ON CONFLICT (campaign_id) DO NOTHING
	`

	tag, err := c.pool.Exec(ctx, query, run.CampaignID, run.SessionID, run.StartedAt)
	if err != nil {
		return store.ActiveSessionRun{}, fmt.Errorf("acquiring session run: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return run, nil
	}

	holder, err := c.GetSessionRun(ctx, run.CampaignID)
	if err != nil {
		return store.ActiveSessionRun{}, err
	}
	if holder == nil {
		return store.ActiveSessionRun{}, fmt.Errorf("acquiring session run: pointer released concurrently")
	}
	if holder.SessionID != run.SessionID {
		return store.ActiveSessionRun{}, &store.SessionRunConflictError{HolderSessionID: holder.SessionID}
	}
	return *holder, nil
}

func (c *Client) ReleaseSessionRun(ctx context.Context, campaignID, sessionID string, endedAt time.Time, durationSeconds int64) error {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("releasing session run: %w", err)
	}
	defer tx.Rollback(ctx)

	var holder string
	err = tx.QueryRow(ctx, `SELECT session_id FROM session_runs WHERE campaign_id = $1 FOR UPDATE`, campaignID).Scan(&holder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrNoActiveRun
		}
		return fmt.Errorf("reading session run: %w", err)
	}
	if holder != sessionID {
		return &store.SessionRunConflictError{HolderSessionID: holder}
	}

	tag, err := tx.Exec(ctx,
		`UPDATE entities SET ended_at = $1, duration_seconds = $2, modified_at = $1 WHERE id = $3`,
		endedAt, durationSeconds, sessionID,
	)
	if err != nil {
		return fmt.Errorf("writing session terminal fields: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}

	if _, err := tx.Exec(ctx, `DELETE FROM session_runs WHERE campaign_id = $1`, campaignID); err != nil {
		return fmt.Errorf("clearing session run: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("releasing session run: %w", err)
	}
	return nil
}

func (c *Client) GetSessionRun(ctx context.Context, campaignID string) (*store.ActiveSessionRun, error) {
	var run store.ActiveSessionRun
	err := c.pool.QueryRow(ctx,
		`SELECT campaign_id, session_id, started_at FROM session_runs WHERE campaign_id = $1`,
		campaignID,
	).Scan(&run.CampaignID, &run.SessionID, &run.StartedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting session run: %w", err)
	}
	return &run, nil
}
