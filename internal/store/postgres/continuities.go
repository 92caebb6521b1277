package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"timewright/internal/store"
)

const continuityColumns = `id, world_id, name, description, branched_from_id, branch_point_event_id, created_at, modified_at`

func (c *Client) PutContinuity(ctx context.Context, cont store.Continuity) error {
	query := `
	INSERT INTO continuities (` + continuityColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (id) DO UPDATE SET
		name = excluded.name,
		description = excluded.description,
		modified_at = excluded.modified_at
	`

	_, err := c.pool.Exec(ctx, query,
		cont.ID, cont.WorldID, cont.Name, cont.Description,
		cont.BranchedFromID, cont.BranchPointEventID,
		cont.CreatedAt, cont.ModifiedAt,
	)
	if err != nil {
		return fmt.Errorf("saving continuity: %w", err)
	}
	return nil
}

func (c *Client) GetContinuity(ctx context.Context, id string) (store.Continuity, error) {
	query := `SELECT ` + continuityColumns + ` FROM continuities WHERE id = $1`

	var cont store.Continuity
	err := c.pool.QueryRow(ctx, query, id).Scan(
		&cont.ID, &cont.WorldID, &cont.Name, &cont.Description,
		&cont.BranchedFromID, &cont.BranchPointEventID,
		&cont.CreatedAt, &cont.ModifiedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Continuity{}, store.ErrNotFound
		}
		return store.Continuity{}, fmt.Errorf("getting continuity: %w", err)
	}
	return cont, nil
}

func (c *Client) DeleteContinuity(ctx context.Context, id string) error {
	tag, err := c.pool.Exec(ctx, `DELETE FROM continuities WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting continuity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (c *Client) ListContinuities(ctx context.Context, worldID string) ([]store.Continuity, error) {
	query := `
	SELECT ` + continuityColumns + `
	FROM continuities
	WHERE ($1 = '' OR world_id = $1)
	ORDER BY created_at ASC, id ASC
	`

	rows, err := c.pool.Query(ctx, query, worldID)
	if err != nil {
		return nil, fmt.Errorf("listing continuities: %w", err)
	}
	defer rows.Close()

	continuities := make([]store.Continuity, 0)
	for rows.Next() {
		var cont store.Continuity
		err := rows.Scan(
			&cont.ID, &cont.WorldID, &cont.Name, &cont.Description,
			&cont.BranchedFromID, &cont.BranchPointEventID,
			&cont.CreatedAt, &cont.ModifiedAt,
		)
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
