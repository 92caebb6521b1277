package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"timewright/internal/store"
)

const entityColumns = `id, world_id, campaign_id, continuity_id, kind, name, description, secrets, type_fields, created_at, modified_at, ended_at, duration_seconds`

func (c *Client) PutEntity(ctx context.Context, e store.Entity) error {
	fieldsJSON, err := json.Marshal(orEmptyMap(e.TypeFields))
	if err != nil {
		return fmt.Errorf("marshaling type fields: %w", err)
	}

	query := `
	INSERT INTO entities (` + entityColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
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

	_, err = c.db.ExecContext(ctx, query,
		e.ID,
		e.WorldID,
		e.CampaignID,
		e.ContinuityID,
		string(e.Kind),
		e.Name,
		e.Description,
		e.Secrets,
		fieldsJSON,
		formatTime(e.CreatedAt),
		formatTime(e.ModifiedAt),
		nullableTime(e.EndedAt),
		nullableInt(e.DurationSeconds),
	)
	if err != nil {
		return fmt.Errorf("saving entity: %w", err)
	}
	return nil
}

func (c *Client) GetEntity(ctx context.Context, id string) (store.Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities WHERE id = ?`

	row := c.db.QueryRowContext(ctx, query, id)
	entity, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Entity{}, store.ErrNotFound
		}
		return store.Entity{}, fmt.Errorf("getting entity: %w", err)
	}
	return entity, nil
}

func (c *Client) DeleteEntity(ctx context.Context, id string) error {
	result, err := c.db.ExecContext(ctx, `DELETE FROM entities WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting entity: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting entity: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (c *Client) ListEntities(ctx context.Context, filter store.EntityFilter) ([]store.Entity, error) {
	query := `
	SELECT ` + entityColumns + `
	FROM entities
	WHERE (? = '' OR world_id = ?)
	  AND (? = '' OR campaign_id = ?)
	  AND (? = '' OR continuity_id = ?)
	  AND (? = '' OR kind = ?)
	ORDER BY id ASC
	`
	args := []any{
		filter.WorldID, filter.WorldID,
		filter.CampaignID, filter.CampaignID,
		filter.ContinuityID, filter.ContinuityID,
		string(filter.Kind), string(filter.Kind),
	}
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
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
	var createdAt, modifiedAt string
	var endedAt sql.NullString
	var duration sql.NullInt64

	err := row.Scan(
		&e.ID,
		&e.WorldID,
		&e.CampaignID,
		&e.ContinuityID,
		&kind,
		&e.Name,
		&e.Description,
		&e.Secrets,
		&fieldsBytes,
		&createdAt,
		&modifiedAt,
		&endedAt,
		&duration,
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

	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return store.Entity{}, err
	}
	if e.ModifiedAt, err = parseTime(modifiedAt); err != nil {
		return store.Entity{}, err
	}
	if endedAt.Valid {
		t, err := parseTime(endedAt.String)
		if err != nil {
			return store.Entity{}, err
		}
		e.EndedAt = &t
	}
	if duration.Valid {
		d := duration.Int64
		e.DurationSeconds = &d
	}
	return e, nil
}

func orEmptyMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func nullableInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
