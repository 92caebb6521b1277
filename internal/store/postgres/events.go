package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"timewright/internal/store"
)

const eventColumns = `id, world_id, continuity_id, name, description, in_world_time, real_world_anchor, location_id, involved_entity_ids, outcomes, created_at, modified_at`

func (c *Client) PutEvent(ctx context.Context, e store.Event) error {
	involved := e.InvolvedEntityIDs
	if involved == nil {
		involved = []string{}
	}
	involvedJSON, err := json.Marshal(involved)
	if err != nil {
		return fmt.Errorf("marshaling involved entities: %w", err)
	}

	outcomesJSON, err := store.EncodeOutcomes(e.Outcomes)
	if err != nil {
		return fmt.Errorf("encoding outcomes: %w", err)
	}

	query := `
	INSERT INTO events (` + eventColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (id) DO UPDATE SET
		world_id = excluded.world_id,
		continuity_id = excluded.continuity_id,
		name = excluded.name,
		description = excluded.description,
		in_world_time = excluded.in_world_time,
		real_world_anchor = excluded.real_world_anchor,
		location_id = excluded.location_id,
		involved_entity_ids = excluded.involved_entity_ids,
		outcomes = excluded.outcomes,
		modified_at = excluded.modified_at
	`

	_, err = c.pool.Exec(ctx, query,
		e.ID, e.WorldID, e.ContinuityID, e.Name, e.Description,
		e.InWorldTime, e.RealWorldAnchor, e.LocationID,
		involvedJSON, outcomesJSON, e.CreatedAt, e.ModifiedAt,
	)
	if err != nil {
		return fmt.Errorf("saving event: %w", err)
	}
	return nil
}

func (c *Client) GetEvent(ctx context.Context, id string) (store.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`

	event, err := scanEvent(c.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Event{}, store.ErrNotFound
		}
		return store.Event{}, fmt.Errorf("getting event: %w", err)
	}
	return event, nil
}

func (c *Client) DeleteEvent(ctx context.Context, id string) error {
	tag, err := c.pool.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (c *Client) ListEventsByContinuity(ctx context.Context, continuityID string, limit int) ([]store.Event, error) {
	query := `
	SELECT ` + eventColumns + `
	FROM events
	WHERE continuity_id = $1
	ORDER BY in_world_time ASC, created_at ASC, id ASC
	`
	args := []any{continuityID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := c.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	defer rows.Close()

	events := make([]store.Event, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("listing events: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}
	return events, nil
}

func (c *Client) CountEventsByContinuity(ctx context.Context, continuityID string) (int, error) {
	var count int
	err := c.pool.QueryRow(ctx, `SELECT COUNT(*) FROM events WHERE continuity_id = $1`, continuityID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting events: %w", err)
	}
	return count, nil
}

func scanEvent(row rowScanner) (store.Event, error) {
	var e store.Event
	var involvedBytes, outcomesBytes []byte

	err := row.Scan(
		&e.ID, &e.WorldID, &e.ContinuityID, &e.Name, &e.Description,
		&e.InWorldTime, &e.RealWorldAnchor, &e.LocationID,
		&involvedBytes, &outcomesBytes, &e.CreatedAt, &e.ModifiedAt,
	)
	if err != nil {
		return store.Event{}, err
	}

	if len(involvedBytes) > 0 {
		if err := json.Unmarshal(involvedBytes, &e.InvolvedEntityIDs); err != nil {
			return store.Event{}, fmt.Errorf("unmarshaling involved entities: %w", err)
		}
	}
	e.Outcomes = store.DecodeOutcomes(outcomesBytes)
	return e, nil
}
