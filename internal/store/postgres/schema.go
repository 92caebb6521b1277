package postgres

import (
	"context"
	"fmt"
)

func (c *Client) EnsureSchema(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS entities (
			id               TEXT PRIMARY KEY,
			world_id         TEXT NOT NULL DEFAULT '',
			campaign_id      TEXT NOT NULL DEFAULT '',
			continuity_id    TEXT NOT NULL DEFAULT '',
			kind             TEXT NOT NULL,
			name             TEXT NOT NULL,
			description      TEXT NOT NULL DEFAULT '',
			secrets          TEXT NOT NULL DEFAULT '',
			type_fields      JSONB NOT NULL DEFAULT '{}',
			created_at       TIMESTAMPTZ NOT NULL,
			modified_at      TIMESTAMPTZ NOT NULL,
			ended_at         TIMESTAMPTZ,
			duration_seconds BIGINT
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id                  TEXT PRIMARY KEY,
			world_id            TEXT NOT NULL DEFAULT '',
			continuity_id       TEXT NOT NULL,
			name                TEXT NOT NULL,
			description         TEXT NOT NULL DEFAULT '',
			in_world_time       TEXT NOT NULL DEFAULT '',
			real_world_anchor   TEXT NOT NULL DEFAULT '',
			location_id         TEXT NOT NULL DEFAULT '',
			involved_entity_ids JSONB NOT NULL DEFAULT '[]',
			outcomes            JSONB NOT NULL DEFAULT '[]',
			created_at          TIMESTAMPTZ NOT NULL,
			modified_at         TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS continuities (
			id                    TEXT PRIMARY KEY,
			world_id              TEXT NOT NULL,
			name                  TEXT NOT NULL,
			description           TEXT NOT NULL DEFAULT '',
			branched_from_id      TEXT NOT NULL DEFAULT '',
			branch_point_event_id TEXT NOT NULL DEFAULT '',
			created_at            TIMESTAMPTZ NOT NULL,
			modified_at           TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS drifts (
			id                  TEXT PRIMARY KEY,
			entity_id           TEXT NOT NULL,
			continuity_id       TEXT NOT NULL DEFAULT '',
			field               TEXT NOT NULL,
			event_derived_value TEXT NOT NULL DEFAULT '',
			current_value       TEXT NOT NULL DEFAULT '',
			detected_at         TIMESTAMPTZ NOT NULL,
			resolved_at         TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS session_runs (
			campaign_id TEXT PRIMARY KEY,
			session_id  TEXT NOT NULL,
			started_at  TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entities_world ON entities (world_id)`,
		`CREATE INDEX IF NOT EXISTS idx_entities_campaign ON entities (campaign_id)`,
		`CREATE INDEX IF NOT EXISTS idx_entities_continuity ON entities (continuity_id)`,
		`CREATE INDEX IF NOT EXISTS idx_entities_kind ON entities (kind)`,
		`CREATE INDEX IF NOT EXISTS idx_events_continuity ON events (continuity_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_continuity_time ON events (continuity_id, in_world_time)`,
		`CREATE INDEX IF NOT EXISTS idx_continuities_world ON continuities (world_id)`,
		`CREATE INDEX IF NOT EXISTS idx_drifts_entity ON drifts (entity_id)`,
		`CREATE INDEX IF NOT EXISTS idx_drifts_continuity ON drifts (continuity_id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_drifts_open ON drifts (entity_id, field) WHERE resolved_at IS NULL`,
	}

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, stmt := range ddl {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("executing DDL: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing schema: %w", err)
	}
	return nil
}
