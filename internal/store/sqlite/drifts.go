package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"timewright/internal/store"
)

const driftColumns = `id, entity_id, continuity_id, field, event_derived_value, current_value, detected_at, resolved_at`

func (c *Client) PutDrift(ctx context.Context, d store.Drift) error {
	query := `
	INSERT INTO drifts (` + driftColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		event_derived_value = excluded.event_derived_value,
		current_value = excluded.current_value,
		detected_at = excluded.detected_at,
		resolved_at = excluded.resolved_at
	`

	_, err := c.db.ExecContext(ctx, query,
		d.ID,
		d.EntityID,
		d.ContinuityID,
		d.Field,
		d.EventDerivedValue,
		d.CurrentValue,
		formatTime(d.DetectedAt),
		nullableTime(d.ResolvedAt),
	)
	if err != nil {
		return fmt.Errorf("saving drift: %w", err)
	}
	return nil
}

func (c *Client) GetDrift(ctx context.Context, id string) (store.Drift, error) {
	query := `SELECT ` + driftColumns + ` FROM drifts WHERE id = ?`

	row := c.db.QueryRowContext(ctx, query, id)
	drift, err := scanDrift(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Drift{}, store.ErrNotFound
		}
		return store.Drift{}, fmt.Errorf("getting drift: %w", err)
	}
	return drift, nil
}

func (c *Client) FindUnresolvedDrift(ctx context.Context, entityID, field string) (store.Drift, error) {
	query := `SELECT ` + driftColumns + ` FROM drifts WHERE entity_id = ? AND field = ? AND resolved_at IS NULL`

	row := c.db.QueryRowContext(ctx, query, entityID, field)
	drift, err := scanDrift(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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
	WHERE (? = '' OR entity_id = ?)
	  AND (? = '' OR continuity_id = ?)
	  AND (? = 0 OR resolved_at IS NULL)
	ORDER BY detected_at ASC, id ASC
	`
	unresolvedOnly := 0
	if filter.Unresolved {
		unresolvedOnly = 1
	}

	rows, err := c.db.QueryContext(ctx, query,
		filter.EntityID, filter.EntityID,
		filter.ContinuityID, filter.ContinuityID,
		unresolvedOnly,
	)
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
	var detectedAt string
	var resolvedAt sql.NullString

	err := row.Scan(
		&d.ID,
		&d.EntityID,
		&d.ContinuityID,
		&d.Field,
		&d.EventDerivedValue,
		&d.CurrentValue,
		&detectedAt,
		&resolvedAt,
	)
	if err != nil {
		return store.Drift{}, err
	}

	if d.DetectedAt, err = parseTime(detectedAt); err != nil {
		return store.Drift{}, err
	}
	if resolvedAt.Valid {
		t, err := parseTime(resolvedAt.String)
		if err != nil {
			return store.Drift{}, err
		}
		d.ResolvedAt = &t
	}
	return d, nil
}
