// Package store mirrors parcel entities from the NGSI-LD broker into
// Postgres, where reporting queries and the map entity reload read from.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// ErrNotFound means the entity id matched no row.
var ErrNotFound = errors.New("parcel not found")

// Record is one synced parcel row.
type Record struct {
	EntityID           string
	Tenant             string
	Name               string
	Category           string
	CadastralReference string
	Municipality       string
	Province           string
	CropType           string
	AreaHectares       float64
	AnalyticsEnabled   bool
	Geometry           json.RawMessage
	Notes              string
	UpdatedAt          time.Time
	Deleted            bool
}

type Store struct {
	db  *sql.DB
	now func() time.Time // for tests
}

func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across instance startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082601)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS parcels (
	entity_id TEXT PRIMARY KEY,
	tenant TEXT NOT NULL DEFAULT 'default',
	name TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	cadastral_reference TEXT NOT NULL DEFAULT '',
	municipality TEXT NOT NULL DEFAULT '',
	province TEXT NOT NULL DEFAULT '',
	crop_type TEXT NOT NULL DEFAULT '',
	area_hectares DOUBLE PRECISION NOT NULL DEFAULT 0,
	analytics_enabled BOOLEAN NOT NULL DEFAULT TRUE,
	geometry JSONB,
	notes TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMPTZ NOT NULL,
	deleted BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_parcels_tenant ON parcels(tenant);
CREATE INDEX IF NOT EXISTS idx_parcels_reference ON parcels(cadastral_reference);
CREATE INDEX IF NOT EXISTS idx_parcels_updated_at ON parcels(updated_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// Upsert writes the record, reviving a previously soft-deleted row.
func (s *Store) Upsert(ctx context.Context, rec Record) error {
	if rec.EntityID == "" {
		return errors.New("record entity id is required")
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = s.now().UTC()
	}
	if rec.Tenant == "" {
		rec.Tenant = DefaultTenant
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO parcels (
	entity_id, tenant, name, category, cadastral_reference, municipality, province,
	crop_type, area_hectares, analytics_enabled, geometry, notes, updated_at, deleted
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,FALSE)
ON CONFLICT (entity_id) DO UPDATE SET
	tenant = EXCLUDED.tenant,
	name = EXCLUDED.name,
	category = EXCLUDED.category,
	cadastral_reference = EXCLUDED.cadastral_reference,
	municipality = EXCLUDED.municipality,
	province = EXCLUDED.province,
	crop_type = EXCLUDED.crop_type,
	area_hectares = EXCLUDED.area_hectares,
	analytics_enabled = EXCLUDED.analytics_enabled,
	geometry = EXCLUDED.geometry,
	notes = EXCLUDED.notes,
	updated_at = EXCLUDED.updated_at,
	deleted = FALSE
`,
		rec.EntityID, rec.Tenant, rec.Name, rec.Category, rec.CadastralReference, rec.Municipality,
		rec.Province, rec.CropType, rec.AreaHectares, rec.AnalyticsEnabled,
		nullableJSON(rec.Geometry), rec.Notes, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert parcel %s: %w", rec.EntityID, err)
	}
	return nil
}

// SoftDelete hides the row without losing history.
func (s *Store) SoftDelete(ctx context.Context, entityID string) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE parcels SET deleted = TRUE, updated_at = $2 WHERE entity_id = $1
`, entityID, s.now().UTC())
	if err != nil {
		return fmt.Errorf("soft delete parcel %s: %w", entityID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("parcel %s: %w", entityID, ErrNotFound)
	}
	return nil
}

// List returns live parcels for a tenant, most recently updated first.
// An empty tenant lists every tenant's parcels.
func (s *Store) List(ctx context.Context, tenant string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT entity_id, tenant, name, category, cadastral_reference, municipality, province,
	crop_type, area_hectares, analytics_enabled, geometry, notes, updated_at
FROM parcels
WHERE NOT deleted AND ($1 = '' OR tenant = $1)
ORDER BY updated_at DESC
LIMIT $2
`, tenant, limit)
	if err != nil {
		return nil, fmt.Errorf("list parcels: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		var rec Record
		var geometry sql.Null[[]byte]
		if err := rows.Scan(
			&rec.EntityID, &rec.Tenant, &rec.Name, &rec.Category, &rec.CadastralReference,
			&rec.Municipality, &rec.Province, &rec.CropType, &rec.AreaHectares,
			&rec.AnalyticsEnabled, &geometry, &rec.Notes, &rec.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan parcel: %w", err)
		}
		if geometry.Valid {
			rec.Geometry = json.RawMessage(geometry.V)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate parcels: %w", err)
	}
	return out, nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
