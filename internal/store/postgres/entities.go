package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"timewright/internal/store"
)

const entityColumns = `id, world_id, campaign_id, continuity_id, kind, name, description, secrets, type_fields, created_at, modified_at, ended_at, duration_seconds`

func (c *Client) PutEntity(ctx context.Context, e store.Entity) error {
	fields := e.TypeFields
	if fields == nil {
		fields = map[string]string{}
	}
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshaling type fields: %w", err)
	}

	query := `
	INSERT INTO entities (` + entityColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT (id) DO UPDATE SET
		world_id = excluded.world_id,
		campaign_id = excluded.campaign_id,
		continuity_id = excluded.continuity_id,
		kind = excluded.kind,
		name = excluded.name,
		description = excluded.description,
		secrets = excluded.secrets,
		type_fields = excluded.type_fields,
		modified_at = excluded.modified_at,
		ended_at = excluded.ended_at,
		duration_seconds = excluded.duration_seconds
	`

	_, err = c.pool.Exec(ctx, query,
		e.ID, e.WorldID, e.CampaignID, e.ContinuityID, string(e.Kind),
		e.Name, e.Description, e.Secrets, fieldsJSON,
		e.CreatedAt, e.ModifiedAt, e.EndedAt, e.DurationSeconds,
	)
	if err != nil {
		return fmt.Errorf("saving entity: %w", err)
	}
	return nil
}

func (c *Client) GetEntity(ctx context.Context, id string) (store.Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities WHERE id = $1`

	entity, err := scanEntity(c.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Entity{}, store.ErrNotFound
		}
		return store.Entity{}, fmt.Errorf("getting entity: %w", err)
	}
	return entity, nil
}

func (c *Client) DeleteEntity(ctx context.Context, id string) error {
	tag, err := c.pool.Exec(ctx, `DELETE FROM entities WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting entity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (c *Client) ListEntities(ctx context.Context, filter store.EntityFilter) ([]store.Entity, error) {
	query := `
	SELECT ` + entityColumns + `
	FROM entities
	WHERE ($1 = '' OR world_id = $1)
	  AND ($2 = '' OR campaign_id = $2)
	  AND ($3 = '' OR continuity_id = $3)
	  AND ($4 = '' OR kind = $4)
	ORDER BY id ASC
	`
	args := []any{filter.WorldID, filter.CampaignID, filter.ContinuityID, string(filter.Kind)}
	if filter.Limit > 0 {
		query += " LIMIT $5"
		args = append(args, filter.Limit)
	}

	rows, err := c.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing entities: %w", err)
	}
	defer rows.Close()

	entities := make([]store.Entity, 0)
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("listing entities: %w", err)
		}
		entities = append(entities, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entities: %w", err)
	}
	return entities, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (store.Entity, error) {
	var e store.Entity
	var kind string
	var fieldsBytes []byte
	var endedAt *time.Time
	var duration *int64

	err := row.Scan(
		&e.ID, &e.WorldID, &e.CampaignID, &e.ContinuityID, &kind,
		&e.Name, &e.Description, &e.Secrets, &fieldsBytes,
		&e.CreatedAt, &e.ModifiedAt, &endedAt, &duration,
	)
	if err != nil {
		return store.Entity{}, err
	}

	e.Kind = store.Kind(kind)
	if len(fieldsBytes) > 0 {
		if err := json.Unmarshal(fieldsBytes, &e.TypeFields); err != nil {
			return store.Entity{}, fmt.Errorf("unmarshaling type fields: %w", err)
		}
	}
	if e.TypeFields == nil {
		e.TypeFields = map[string]string{}
	}
	e.EndedAt = endedAt
	e.DurationSeconds = duration
	return e, nil
}
