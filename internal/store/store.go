package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/carbon-cli/internal/model"
)

// CalculationFilter specifies criteria for listing audit rows.
type CalculationFilter struct {
	Origin        string              `json:"origin,omitempty"`
	Destination   string              `json:"destination,omitempty"`
	TransportMode model.TransportMode `json:"transport_mode,omitempty"`
	Limit         int                 `json:"limit,omitempty"`
}

// DefaultListLimit caps ListCalculations when the filter sets no limit.
const DefaultListLimit = 100

// Store is the durable system of record: the emission factor table and the
// calculation audit log.
type Store interface {
	// Emission factors. GetEmissionFactor returns (nil, nil) when no row
	// exists for mode.
	GetEmissionFactor(ctx context.Context, mode model.TransportMode) (*model.EmissionFactor, error)
	ListEmissionFactors(ctx context.Context) ([]model.EmissionFactor, error)
	UpsertEmissionFactors(ctx context.Context, factors ...model.EmissionFactor) error

	// Audit log
	InsertCalculation(ctx context.Context, rec model.AuditRecord) error
	ListCalculations(ctx context.Context, filter CalculationFilter) ([]model.AuditRecord, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

func validateFactors(factors []model.EmissionFactor) error {
	for _, f := range factors {
		if !f.TransportMode.Valid() {
			return eris.Errorf("store: invalid transport mode %q", f.TransportMode)
		}
		if f.FactorPerKmKg <= 0 {
			return eris.Errorf("store: factor for %s must be positive, got %v", f.TransportMode, f.FactorPerKmKg)
		}
	}
	return nil
}

func listLimit(filter CalculationFilter) int {
	if filter.Limit <= 0 {
		return DefaultListLimit
	}
	return filter.Limit
}
