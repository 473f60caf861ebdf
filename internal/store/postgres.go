package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/carbon-cli/internal/db"
	"github.com/sells-group/carbon-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

var factorUpsert = db.UpsertConfig{
	Table:        "emission_factors",
	Columns:      []string{"transport_mode", "factor_per_km_kg", "updated_at"},
	ConflictKeys: []string{"transport_mode"},
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS emission_factors (
	transport_mode   TEXT PRIMARY KEY,
	factor_per_km_kg DOUBLE PRECISION NOT NULL CHECK (factor_per_km_kg > 0),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS calculations (
	id             TEXT PRIMARY KEY,
	variant        TEXT NOT NULL DEFAULT 'direct',
	origin         TEXT NOT NULL,
	destination    TEXT NOT NULL,
	weight_kg      DOUBLE PRECISION NOT NULL,
	transport_mode TEXT NOT NULL,
	distance_km    INTEGER NOT NULL,
	emissions_kg   DOUBLE PRECISION NOT NULL,
	latency_ms     BIGINT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_calculations_created_at ON calculations(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_calculations_route ON calculations(origin, destination);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) GetEmissionFactor(ctx context.Context, mode model.TransportMode) (*model.EmissionFactor, error) {
	var (
		f       model.EmissionFactor
		modeStr string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT transport_mode, factor_per_km_kg, updated_at FROM emission_factors WHERE transport_mode = $1`,
		string(mode),
	).Scan(&modeStr, &f.FactorPerKmKg, &f.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get emission factor %s", mode)
	}
	f.TransportMode = model.TransportMode(modeStr)
	return &f, nil
}

func (s *PostgresStore) ListEmissionFactors(ctx context.Context) ([]model.EmissionFactor, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT transport_mode, factor_per_km_kg, updated_at FROM emission_factors ORDER BY transport_mode`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list emission factors")
	}
	defer rows.Close()

	var out []model.EmissionFactor
	for rows.Next() {
		var (
			f       model.EmissionFactor
			modeStr string
		)
		if err := rows.Scan(&modeStr, &f.FactorPerKmKg, &f.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan emission factor")
		}
		f.TransportMode = model.TransportMode(modeStr)
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate emission factors")
}

func (s *PostgresStore) UpsertEmissionFactors(ctx context.Context, factors ...model.EmissionFactor) error {
	if err := validateFactors(factors); err != nil {
		return err
	}

	now := time.Now().UTC()
	rows := make([][]any, len(factors))
	for i, f := range factors {
		rows[i] = []any{string(f.TransportMode), f.FactorPerKmKg, now}
	}
	if _, err := db.Upsert(ctx, s.pool, factorUpsert, rows); err != nil {
		return eris.Wrap(err, "postgres: upsert emission factors")
	}
	return nil
}

func (s *PostgresStore) InsertCalculation(ctx context.Context, rec model.AuditRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO calculations (id, variant, origin, destination, weight_kg, transport_mode, distance_km, emissions_kg, latency_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, string(rec.Variant), rec.Origin, rec.Destination, rec.WeightKg,
		string(rec.TransportMode), rec.DistanceKm, rec.EmissionsKg, rec.LatencyMs, rec.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert calculation")
}

func (s *PostgresStore) ListCalculations(ctx context.Context, filter CalculationFilter) ([]model.AuditRecord, error) {
	query := `SELECT id, variant, origin, destination, weight_kg, transport_mode, distance_km, emissions_kg, latency_ms, created_at
		FROM calculations WHERE 1=1`
	var args []any
	argN := 1

	if filter.Origin != "" {
		query += fmt.Sprintf(" AND origin = $%d", argN)
		args = append(args, filter.Origin)
		argN++
	}
	if filter.Destination != "" {
		query += fmt.Sprintf(" AND destination = $%d", argN)
		args = append(args, filter.Destination)
		argN++
	}
	if filter.TransportMode != "" {
		query += fmt.Sprintf(" AND transport_mode = $%d", argN)
		args = append(args, string(filter.TransportMode))
		argN++
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", argN)
	args = append(args, listLimit(filter))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list calculations")
	}
	defer rows.Close()

	var out []model.AuditRecord
	for rows.Next() {
		var (
			r                model.AuditRecord
			variant, modeStr string
		)
		if err := rows.Scan(&r.ID, &variant, &r.Origin, &r.Destination, &r.WeightKg,
			&modeStr, &r.DistanceKm, &r.EmissionsKg, &r.LatencyMs, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan calculation")
		}
		r.Variant = model.Variant(variant)
		r.TransportMode = model.TransportMode(modeStr)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate calculations")
}
