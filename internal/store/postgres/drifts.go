package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"timewright/internal/store"
)

const driftColumns = `id, entity_id, continuity_id, field, event_derived_value, current_value, detected_at, resolved_at`

func (c *Client) PutDrift(ctx context.Context, d store.Drift) error {
	query := `
	INSERT INTO drifts (` + driftColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (id) DO UPDATE SET
		event_derived_value = excluded.event_derived_value,
		current_value = excluded.current_value,
		detected_at = excluded.detected_at,
		resolved_at = excluded.resolved_at
	`

	_, err := c.pool.Exec(ctx, query,
		d.ID, d.EntityID, d.ContinuityID, d.Field,
		d.EventDerivedValue, d.CurrentValue, d.DetectedAt, d.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("saving drift: %w", err)
	}
	return nil
}

func (c *Client) GetDrift(ctx context.Context, id string) (store.Drift, error) {
	query := `SELECT ` + driftColumns + ` FROM drifts WHERE id = $1`

	drift, err := scanDrift(c.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Drift{}, store.ErrNotFound
		}
		return store.Drift{}, fmt.Errorf("getting drift: %w", err)
	}
	return drift, nil
}

func (c *Client) FindUnresolvedDrift(ctx context.Context, entityID, field string) (store.Drift, error) {
	query := `SELECT ` + driftColumns + ` FROM drifts WHERE entity_id = $1 AND field = $2 AND resolved_at IS NULL`

	drift, err := scanDrift(c.pool.QueryRow(ctx, query, entityID, field))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Drift{}, store.ErrNotFound
		}
		return store.Drift{}, fmt.Errorf("finding drift: %w", err)
	}
	return drift, nil
}

func (c *Client) ListDrifts(ctx context.Context, filter store.DriftFilter) ([]store.Drift, error) {
	query := `
	SELECT ` + driftColumns + `
	FROM drifts
	WHERE ($1 = '' OR entity_id = $1)
	  AND ($2 = '' OR continuity_id = $2)
	  AND (NOT $3 OR resolved_at IS NULL)
	ORDER BY detected_at ASC, id ASC
	`

	rows, err := c.pool.Query(ctx, query, filter.EntityID, filter.ContinuityID, filter.Unresolved)
	if err != nil {
		return nil, fmt.Errorf("listing drifts: %w", err)
	}
	defer rows.Close()

	drifts := make([]store.Drift, 0)
	for rows.Next() {
		drift, err := scanDrift(rows)
		if err != nil {
			return nil, fmt.Errorf("listing drifts: %w", err)
		}
		drifts = append(drifts, drift)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating drifts: %w", err)
	}
	return drifts, nil
}

func scanDrift(row rowScanner) (store.Drift, error) {
	var d store.Drift
	err := row.Scan(
		&d.ID, &d.EntityID, &d.ContinuityID, &d.Field,
		&d.EventDerivedValue, &d.CurrentValue, &d.DetectedAt, &d.ResolvedAt,
	)
	if err != nil {
		return store.Drift{}, err
	}
	return d, nil
}
