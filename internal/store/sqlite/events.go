package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

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
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
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

	_, err = c.db.ExecContext(ctx, query,
		e.ID,
		e.WorldID,
		e.ContinuityID,
		e.Name,
		e.Description,
		e.InWorldTime,
		e.RealWorldAnchor,
		e.LocationID,
		involvedJSON,
		outcomesJSON,
		formatTime(e.CreatedAt),
		formatTime(e.ModifiedAt),
	)
	if err != nil {
		return fmt.Errorf("saving event: %w", err)
	}
	return nil
}

func (c *Client) GetEvent(ctx context.Context, id string) (store.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = ?`

	row := c.db.QueryRowContext(ctx, query, id)
	event, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Event{}, store.ErrNotFound
		}
		return store.Event{}, fmt.Errorf("getting event: %w", err)
	}
	return event, nil
}

func (c *Client) DeleteEvent(ctx context.Context, id string) error {
	result, err := c.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting event: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting event: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (c *Client) ListEventsByContinuity(ctx context.Context, continuityID string, limit int) ([]store.Event, error) {
	query := `
	SELECT ` + eventColumns + `
	FROM events
	WHERE continuity_id = ?
	ORDER BY in_world_time ASC, created_at ASC, id ASC
	`
	args := []any{continuityID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
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
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE continuity_id = ?`, continuityID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting events: %w", err)
	}
	return count, nil
}

func scanEvent(row rowScanner) (store.Event, error) {
	var e store.Event
	var involvedBytes, outcomesBytes []byte
	var createdAt, modifiedAt string

	err := row.Scan(
		&e.ID,
		&e.WorldID,
		&e.ContinuityID,
		&e.Name,
		&e.Description,
		&e.InWorldTime,
		&e.RealWorldAnchor,
		&e.LocationID,
		&involvedBytes,
		&outcomesBytes,
		&createdAt,
		&modifiedAt,
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

	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return store.Event{}, err
	}
	if e.ModifiedAt, err = parseTime(modifiedAt); err != nil {
		return store.Event{}, err
	}
	return e, nil
}
