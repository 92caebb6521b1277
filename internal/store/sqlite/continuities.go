package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"timewright/internal/store"
)

const continuityColumns = `id, world_id, name, description, branched_from_id, branch_point_event_id, created_at, modified_at`

func (c *Client) PutContinuity(ctx context.Context, cont store.Continuity) error {
	query := `
	INSERT INTO continuities (` + continuityColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		name = excluded.name,
		description = excluded.description,
		modified_at = excluded.modified_at
	`

	_, err := c.db.ExecContext(ctx, query,
		cont.ID,
		cont.WorldID,
		cont.Name,
		cont.Description,
		cont.BranchedFromID,
		cont.BranchPointEventID,
		formatTime(cont.CreatedAt),
		formatTime(cont.ModifiedAt),
	)
	if err != nil {
		return fmt.Errorf("saving continuity: %w", err)
	}
	return nil
}

func (c *Client) GetContinuity(ctx context.Context, id string) (store.Continuity, error) {
	query := `SELECT ` + continuityColumns + ` FROM continuities WHERE id = ?`

	row := c.db.QueryRowContext(ctx, query, id)
	cont, err := scanContinuity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Continuity{}, store.ErrNotFound
		}
		return store.Continuity{}, fmt.Errorf("getting continuity: %w", err)
	}
	return cont, nil
}

func (c *Client) DeleteContinuity(ctx context.Context, id string) error {
	result, err := c.db.ExecContext(ctx, `DELETE FROM continuities WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting continuity: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting continuity: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (c *Client) ListContinuities(ctx context.Context, worldID string) ([]store.Continuity, error) {
	query := `
	SELECT ` + continuityColumns + `
	FROM continuities
	WHERE (? = '' OR world_id = ?)
	ORDER BY created_at ASC, id ASC
	`

	rows, err := c.db.QueryContext(ctx, query, worldID, worldID)
	if err != nil {
		return nil, fmt.Errorf("listing continuities: %w", err)
	}
	defer rows.Close()

	continuities := make([]store.Continuity, 0)
	for rows.Next() {
		cont, err := scanContinuity(rows)
		if err != nil {
			return nil, fmt.Errorf("listing continuities: %w", err)
		}
		continuities = append(continuities, cont)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating continuities: %w", err)
	}
	return continuities, nil
}

func scanContinuity(row rowScanner) (store.Continuity, error) {
	var cont store.Continuity
	var createdAt, modifiedAt string

	err := row.Scan(
		&cont.ID,
		&cont.WorldID,
		&cont.Name,
		&cont.Description,
		&cont.BranchedFromID,
		&cont.BranchPointEventID,
		&createdAt,
		&modifiedAt,
	)
	if err != nil {
		return store.Continuity{}, err
	}

	if cont.CreatedAt, err = parseTime(createdAt); err != nil {
		return store.Continuity{}, err
	}
	if cont.ModifiedAt, err = parseTime(modifiedAt); err != nil {
		return store.Continuity{}, err
	}
	return cont, nil
}
