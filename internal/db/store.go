package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sos_unifio/backend/internal/models"
)

type Store struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const schema = `
CREATE TABLE IF NOT EXISTS occurrences (
	id              TEXT PRIMARY KEY,
	requester_id    TEXT NOT NULL DEFAULT '',
	requester_name  TEXT NOT NULL DEFAULT '',
	requester_role  TEXT NOT NULL DEFAULT '',
	description     TEXT NOT NULL DEFAULT '',
	symptoms        TEXT[] NOT NULL DEFAULT '{}',
	people_count    TEXT NOT NULL,
	location_id     TEXT NOT NULL DEFAULT '',
	location_name   TEXT NOT NULL DEFAULT '',
	location_detail TEXT NOT NULL DEFAULT '',
	type            TEXT NOT NULL,
	priority        TEXT NOT NULL,
	status          TEXT NOT NULL,
	assigned_to     TEXT NOT NULL DEFAULT '',
	opened_at       TIMESTAMPTZ NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS occurrences_status_idx ON occurrences (status);
ALTER TABLE occurrences ADD COLUMN IF NOT EXISTS attempted_responders_ids TEXT[] NOT NULL DEFAULT '{}';

CREATE TABLE IF NOT EXISTS responders (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	role         TEXT NOT NULL,
	available    BOOLEAN NOT NULL DEFAULT TRUE,
	device_token TEXT NOT NULL DEFAULT '',
	lat          DOUBLE PRECISION,
	lon          DOUBLE PRECISION
);

CREATE TABLE IF NOT EXISTS locations (
	id    TEXT PRIMARY KEY,
	name  TEXT NOT NULL,
	block TEXT NOT NULL DEFAULT '',
	lat   DOUBLE PRECISION,
	lon   DOUBLE PRECISION
);
`

// Migrate creates the tables the service reads and writes.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.Pool.Exec(ctx, schema)
	return err
}

// SaveOccurrence upserts an occurrence snapshot. A snapshot older than the
// stored row is ignored so out-of-order writes cannot move state backwards.
func (s *Store) SaveOccurrence(ctx context.Context, o models.Occurrence) error {
	symptoms := make([]string, 0, len(o.Symptoms))
	for _, tag := range o.Symptoms {
		symptoms = append(symptoms, string(tag))
	}
	attempted := o.AttemptedResponderIDs
	if attempted == nil {
		attempted = []string{}
	}
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO occurrences (id, requester_id, requester_name, requester_role, description, symptoms,
			people_count, location_id, location_name, location_detail, type, priority, status, assigned_to,
			attempted_responders_ids, opened_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (id) DO UPDATE SET
			description = EXCLUDED.description,
			symptoms = EXCLUDED.symptoms,
			location_detail = EXCLUDED.location_detail,
			type = EXCLUDED.type,
			priority = EXCLUDED.priority,
			status = EXCLUDED.status,
			assigned_to = EXCLUDED.assigned_to,
			attempted_responders_ids = EXCLUDED.attempted_responders_ids,
			updated_at = EXCLUDED.updated_at
		WHERE occurrences.updated_at <= EXCLUDED.updated_at
	`, o.ID, o.RequesterID, o.RequesterName, o.RequesterRole, o.Description, symptoms,
		string(o.PeopleCount), o.LocationID, o.LocationName, o.LocationDetail, string(o.Type), string(o.Priority),
		string(o.Status), o.AssignedTo, attempted, o.OpenedAt, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert occurrence %s: %w", o.ID, err)
	}
	return nil
}

// ListActiveOccurrences loads the non-terminal occurrences, oldest first.
func (s *Store) ListActiveOccurrences(ctx context.Context) ([]models.Occurrence, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, requester_id, requester_name, requester_role, description, symptoms, people_count,
			location_id, location_name, location_detail, type, priority, status, assigned_to,
			attempted_responders_ids, opened_at, created_at, updated_at
		FROM occurrences
		WHERE status NOT IN ('concluido', 'cancelado')
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Occurrence
	for rows.Next() {
		var (
			o        models.Occurrence
			symptoms []string
			people   string
			typ      string
			priority string
			status   string
		)
		if err := rows.Scan(&o.ID, &o.RequesterID, &o.RequesterName, &o.RequesterRole, &o.Description, &symptoms, &people,
			&o.LocationID, &o.LocationName, &o.LocationDetail, &typ, &priority, &status, &o.AssignedTo,
			&o.AttemptedResponderIDs, &o.OpenedAt, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		for _, tag := range symptoms {
			o.Symptoms = append(o.Symptoms, models.SymptomTag(tag))
		}
		o.PeopleCount = models.PeopleCount(people)
		o.Type = models.OccurrenceType(typ)
		o.Priority = models.Priority(priority)
		o.Status = models.Status(status)
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) ListResponders(ctx context.Context) ([]models.Responder, error) {
	rows, err := s.Pool.Query(ctx, `SELECT id, name, role, available, device_token, lat, lon FROM responders ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Responder
	for rows.Next() {
		var (
			r    models.Responder
			role string
		)
		if err := rows.Scan(&r.ID, &r.Name, &role, &r.Available, &r.DeviceToken, &r.Lat, &r.Lon); err != nil {
			return nil, err
		}
		r.Role = models.Role(role)
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpsertResponders copies a roster seed into the responders table.
func (s *Store) UpsertResponders(ctx context.Context, roster []models.Responder) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, r := range roster {
			batch.Queue(`
				INSERT INTO responders (id, name, role, available, device_token, lat, lon)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (id) DO UPDATE SET
					name = EXCLUDED.name,
					role = EXCLUDED.role,
					available = EXCLUDED.available,
					device_token = EXCLUDED.device_token,
					lat = EXCLUDED.lat,
					lon = EXCLUDED.lon
			`, r.ID, r.Name, string(r.Role), r.Available, r.DeviceToken, r.Lat, r.Lon)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

func (s *Store) SetResponderAvailability(ctx context.Context, id string, available bool) error {
	_, err := s.Pool.Exec(ctx, `UPDATE responders SET available = $2 WHERE id = $1`, id, available)
	return err
}

func (s *Store) ListLocations(ctx context.Context) ([]models.Location, error) {
	rows, err := s.Pool.Query(ctx, `SELECT id, name, block, lat, lon FROM locations ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Location
	for rows.Next() {
		var l models.Location
		if err := rows.Scan(&l.ID, &l.Name, &l.Block, &l.Lat, &l.Lon); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) UpdateLocationCoords(ctx context.Context, id string, lat, lon float64) error {
	_, err := s.Pool.Exec(ctx, `UPDATE locations SET lat = $2, lon = $3 WHERE id = $1`, id, lat, lon)
	return err
}

// UpsertLocations copies the campus locations from a roster seed. Stored
// coordinates are kept when the seed has none.
func (s *Store) UpsertLocations(ctx context.Context, locations []models.Location) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, l := range locations {
			batch.Queue(`
				INSERT INTO locations (id, name, block, lat, lon)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (id) DO UPDATE SET
					name = EXCLUDED.name,
					block = EXCLUDED.block,
					lat = COALESCE(EXCLUDED.lat, locations.lat),
					lon = COALESCE(EXCLUDED.lon, locations.lon)
			`, l.ID, l.Name, l.Block, l.Lat, l.Lon)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}
