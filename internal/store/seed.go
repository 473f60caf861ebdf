package store

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/carbon-cli/internal/model"
)

// DefaultFactors are the emission factors (kg CO2e per km per kg) written by
// Seed when no seed file is given.
func DefaultFactors() []model.EmissionFactor {
	return []model.EmissionFactor{
		{TransportMode: model.TransportGround, FactorPerKmKg: 0.1},
		{TransportMode: model.TransportAir, FactorPerKmKg: 0.5},
		{TransportMode: model.TransportSea, FactorPerKmKg: 0.01},
	}
}

// LoadFactorsFile reads emission factors from a YAML file of the form
//
//	emission_factors:
//	  - transport_mode: ground
//	    factor_per_km_kg: 0.1
func LoadFactorsFile(path string) ([]model.EmissionFactor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "store: read factors %s", path)
	}

	var wrapper struct {
		EmissionFactors []model.EmissionFactor `yaml:"emission_factors"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "store: parse factors")
	}
	if len(wrapper.EmissionFactors) == 0 {
		return nil, eris.Errorf("store: %s defines no emission_factors", path)
	}
	if err := validateFactors(wrapper.EmissionFactors); err != nil {
		return nil, err
	}
	return wrapper.EmissionFactors, nil
}

// Seed upserts factors, or DefaultFactors when factors is empty.
func Seed(ctx context.Context, s Store, factors []model.EmissionFactor) ([]model.EmissionFactor, error) {
	if len(factors) == 0 {
		factors = DefaultFactors()
	}
	if err := s.UpsertEmissionFactors(ctx, factors...); err != nil {
		return nil, err
	}
	return factors, nil
}
