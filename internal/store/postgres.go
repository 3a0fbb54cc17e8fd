// Package store persists clean datasets to Postgres so other services can
// query charge points without re-running the pipeline. Upserts are keyed on
// the identity key: because keys are deterministic, replaying a build is
// idempotent.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voltmap/irve-etl/internal/domain"
)

// Schema is the DDL the sink expects. Applied out-of-band (migrations are
// owned by the deployment, not this service).
const Schema = `
CREATE TABLE IF NOT EXISTS charge_points (
    identity_key    TEXT PRIMARY KEY,
    station_id      TEXT,
    connector_id    TEXT,
    operator_name   TEXT,
    amenageur_name  TEXT,
    commune         TEXT,
    latitude        DOUBLE PRECISION NOT NULL,
    longitude       DOUBLE PRECISION NOT NULL,
    power_kw        DOUBLE PRECISION,
    power_tier      TEXT NOT NULL,
    installed_at    TIMESTAMPTZ,
    updated_at      TIMESTAMPTZ,
    status          TEXT NOT NULL,
    fingerprint     TEXT NOT NULL,
    synced_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// Store writes charge points to Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// New connects a pool and verifies the database is reachable.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// UpsertDataset writes every record of a clean dataset in one batch.
// Unknown sentinel fields map to SQL NULL, never to zero.
func (s *Store) UpsertDataset(ctx context.Context, ds *domain.CleanDataset) error {
	if len(ds.Records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `INSERT INTO charge_points
    (identity_key, station_id, connector_id, operator_name, amenageur_name, commune,
     latitude, longitude, power_kw, power_tier, installed_at, updated_at, status,
     fingerprint, synced_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,NOW())
ON CONFLICT (identity_key) DO UPDATE
SET station_id = EXCLUDED.station_id,
    connector_id = EXCLUDED.connector_id,
    operator_name = EXCLUDED.operator_name,
    amenageur_name = EXCLUDED.amenageur_name,
    commune = EXCLUDED.commune,
    latitude = EXCLUDED.latitude,
    longitude = EXCLUDED.longitude,
    power_kw = EXCLUDED.power_kw,
    power_tier = EXCLUDED.power_tier,
    installed_at = EXCLUDED.installed_at,
    updated_at = EXCLUDED.updated_at,
    status = EXCLUDED.status,
    fingerprint = EXCLUDED.fingerprint,
    synced_at = NOW()`

	for _, rec := range ds.Records {
		batch.Queue(query,
			rec.IdentityKey, nullable(rec.StationID), nullable(rec.ConnectorID),
			nullable(rec.OperatorName), nullable(rec.AmenageurName), nullable(rec.Commune),
			rec.Latitude, rec.Longitude, rec.PowerKW, rec.PowerTier,
			rec.InstalledAt, rec.UpdatedAt, rec.Status, ds.Fingerprint,
		)
	}

	res := s.pool.SendBatch(ctx, batch)
	defer res.Close()

	for range ds.Records {
		if _, err := res.Exec(); err != nil {
			return fmt.Errorf("upsert charge point: %w", err)
		}
	}
	return nil
}

// nullable maps the empty-string unknown state to SQL NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
