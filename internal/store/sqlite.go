package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/carbon-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS emission_factors (
	transport_mode   TEXT PRIMARY KEY,
	factor_per_km_kg REAL NOT NULL CHECK (factor_per_km_kg > 0),
	updated_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS calculations (
	id             TEXT PRIMARY KEY,
	variant        TEXT NOT NULL DEFAULT 'direct',
	origin         TEXT NOT NULL,
	destination    TEXT NOT NULL,
	weight_kg      REAL NOT NULL,
	transport_mode TEXT NOT NULL,
	distance_km    INTEGER NOT NULL,
	emissions_kg   REAL NOT NULL,
	latency_ms     INTEGER NOT NULL,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_calculations_created_at ON calculations(created_at);
CREATE INDEX IF NOT EXISTS idx_calculations_route ON calculations(origin, destination);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanFactor(row scannable) (*model.EmissionFactor, error) {
	var (
		f    model.EmissionFactor
		mode string
	)
	if err := row.Scan(&mode, &f.FactorPerKmKg, &f.UpdatedAt); err != nil {
		return nil, err
	}
	f.TransportMode = model.TransportMode(mode)
	return &f, nil
}

func (s *SQLiteStore) GetEmissionFactor(ctx context.Context, mode model.TransportMode) (*model.EmissionFactor, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT transport_mode, factor_per_km_kg, updated_at FROM emission_factors WHERE transport_mode = ?`,
		string(mode),
	)
	f, err := scanFactor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get emission factor %s", mode)
	}
	return f, nil
}

func (s *SQLiteStore) ListEmissionFactors(ctx context.Context) ([]model.EmissionFactor, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT transport_mode, factor_per_km_kg, updated_at FROM emission_factors ORDER BY transport_mode`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list emission factors")
	}
	defer rows.Close()

	var out []model.EmissionFactor
	for rows.Next() {
		f, err := scanFactor(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan emission factor")
		}
		out = append(out, *f)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate emission factors")
}

func (s *SQLiteStore) UpsertEmissionFactors(ctx context.Context, factors ...model.EmissionFactor) error {
	if err := validateFactors(factors); err != nil {
		return err
	}
	if len(factors) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	for _, f := range factors {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO emission_factors (transport_mode, factor_per_km_kg, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(transport_mode) DO UPDATE SET factor_per_km_kg = excluded.factor_per_km_kg, updated_at = excluded.updated_at`,
			string(f.TransportMode), f.FactorPerKmKg, now,
		); err != nil {
			return eris.Wrapf(err, "sqlite: upsert emission factor %s", f.TransportMode)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit emission factors")
}

func (s *SQLiteStore) InsertCalculation(ctx context.Context, rec model.AuditRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO calculations (id, variant, origin, destination, weight_kg, transport_mode, distance_km, emissions_kg, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.Variant), rec.Origin, rec.Destination, rec.WeightKg,
		string(rec.TransportMode), rec.DistanceKm, rec.EmissionsKg, rec.LatencyMs, rec.CreatedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: insert calculation")
}

func (s *SQLiteStore) ListCalculations(ctx context.Context, filter CalculationFilter) ([]model.AuditRecord, error) {
	query := `SELECT id, variant, origin, destination, weight_kg, transport_mode, distance_km, emissions_kg, latency_ms, created_at
		FROM calculations WHERE 1=1`
	var args []any

	if filter.Origin != "" {
		query += ` AND origin = ?`
		args = append(args, filter.Origin)
	}
	if filter.Destination != "" {
		query += ` AND destination = ?`
		args = append(args, filter.Destination)
	}
	if filter.TransportMode != "" {
		query += ` AND transport_mode = ?`
		args = append(args, string(filter.TransportMode))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, listLimit(filter))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list calculations")
	}
	defer rows.Close()

	var out []model.AuditRecord
	for rows.Next() {
		var (
			r             model.AuditRecord
			variant, mode string
		)
		if err := rows.Scan(&r.ID, &variant, &r.Origin, &r.Destination, &r.WeightKg,
			&mode, &r.DistanceKm, &r.EmissionsKg, &r.LatencyMs, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan calculation")
		}
		r.Variant = model.Variant(variant)
		r.TransportMode = model.TransportMode(mode)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate calculations")
}
