package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/carbon-cli/internal/cache"
	"github.com/sells-group/carbon-cli/internal/calc"
	"github.com/sells-group/carbon-cli/internal/factor"
	"github.com/sells-group/carbon-cli/internal/geo"
	"github.com/sells-group/carbon-cli/internal/model"
	"github.com/sells-group/carbon-cli/internal/store"
)

func ptr[T any](v T) *T { return &v }

func TestRunCalculate_Direct(t *testing.T) {
	useTestConfig(t)
	seedStore(t)

	var out bytes.Buffer
	err := runCalculate(context.Background(), &out, calculateInput{
		Origin:      "NYC",
		Destination: "LAX",
		WeightKg:    ptr(10.0),
		Mode:        ptr(model.TransportGround),
	})
	require.NoError(t, err)

	var res model.CalculationResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, 3936, res.DistanceKm)
	assert.Equal(t, 3936.0, res.EmissionsKg)
	assert.False(t, res.CacheHit)
	require.NotNil(t, res.Request)
	assert.Equal(t, model.TransportGround, res.Request.TransportMode)
}

func TestRunCalculate_Errors(t *testing.T) {
	useTestConfig(t)
	seedStore(t)

	err := runCalculate(context.Background(), &bytes.Buffer{}, calculateInput{Origin: "NYC", Destination: "Atlantis", WeightKg: ptr(1.0)})
	require.Error(t, err)
	assert.Equal(t, "Unknown destination city: Atlantis", err.Error())

	err = runCalculate(context.Background(), &bytes.Buffer{}, calculateInput{Origin: "NYC"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Validation failed")
	assert.Contains(t, err.Error(), "destination: Required")
	assert.Contains(t, err.Error(), "weight_kg: Must be greater than 0")
}

func TestRunCalculate_SmartNeedsKey(t *testing.T) {
	c := useTestConfig(t)
	c.Anthropic.Key = ""

	err := runCalculate(context.Background(), &bytes.Buffer{}, calculateInput{Query: "NYC to LAX"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key is required")
}

type fakeParser struct {
	res *model.ParseResult
	err error
}

func (p fakeParser) Parse(context.Context, model.ParseRequest) (*model.ParseResult, error) {
	return p.res, p.err
}

func TestRunParse(t *testing.T) {
	var out bytes.Buffer
	err := runParse(context.Background(), &out, fakeParser{res: &model.ParseResult{
		Extraction: model.Extraction{Origin: "Chicago", Destination: "Dallas", Confidence: 0.8},
		LatencyMs:  12,
	}}, "Chicago to Dallas")
	require.NoError(t, err)
	assert.Contains(t, out.String(), `"origin": "Chicago"`)
	assert.Contains(t, out.String(), `"latency_ms": 12`)

	err = runParse(context.Background(), &out, fakeParser{err: calc.ErrExtractionUnavailable}, "x")
	assert.ErrorIs(t, err, calc.ErrExtractionUnavailable)
}

func TestRunParse_EngineValidation(t *testing.T) {
	engine := calc.NewEngine(geo.Default(), nil, nil)
	err := runParse(context.Background(), &bytes.Buffer{}, engine, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query: Required")
}

func TestRunCities(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runCities(&out, geo.Default(), false))
	assert.Contains(t, out.String(), "NYC\n")
	assert.Contains(t, out.String(), "cities\n")

	out.Reset()
	require.NoError(t, runCities(&out, geo.Default(), true))
	var fc map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &fc))
	assert.Equal(t, "FeatureCollection", fc["type"])
}

func TestRunFactorsList(t *testing.T) {
	useTestConfig(t)
	seedStore(t)

	var out bytes.Buffer
	err := withFactors(context.Background(), func(ctx context.Context, fs *factor.Store) error {
		return runFactorsList(ctx, &out, fs)
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "MODE")
	assert.Contains(t, out.String(), "ground")
	assert.Contains(t, out.String(), "0.01")
}

func TestRunMigrate_SeedIsIdempotent(t *testing.T) {
	useTestConfig(t)
	ctx := context.Background()

	st, err := initStore(ctx)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	var out bytes.Buffer
	require.NoError(t, runMigrate(ctx, &out, st, true))
	assert.Contains(t, out.String(), "Migrated sqlite store.")
	assert.Contains(t, out.String(), "Seeded 3 emission factors.")

	require.NoError(t, st.UpsertEmissionFactors(ctx, model.EmissionFactor{TransportMode: model.TransportAir, FactorPerKmKg: 0.6}))

	out.Reset()
	require.NoError(t, runMigrate(ctx, &out, st, true))
	assert.Contains(t, out.String(), "Emission factors already present.")

	air, err := st.GetEmissionFactor(ctx, model.TransportAir)
	require.NoError(t, err)
	assert.Equal(t, 0.6, air.FactorPerKmKg, "seeding does not overwrite existing rows")
}

func TestRunHistory(t *testing.T) {
	useTestConfig(t)
	seedStore(t)
	ctx := context.Background()

	env, err := initApp(ctx, false, nil)
	require.NoError(t, err)
	_, err = env.Engine.Calculate(ctx, model.CalculationRequest{Origin: "NYC", Destination: "LAX", WeightKg: 10})
	require.NoError(t, err)
	_, err = env.Engine.Calculate(ctx, model.CalculationRequest{Origin: "Tokyo", Destination: "Sydney", WeightKg: 2, TransportMode: model.TransportAir})
	require.NoError(t, err)
	env.Close(ctx)

	st, err := initStore(ctx)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	var out bytes.Buffer
	require.NoError(t, runHistory(ctx, &out, st, store.CalculationFilter{}, ""))
	assert.Contains(t, out.String(), "NYC → LAX")
	assert.Contains(t, out.String(), "Tokyo → Sydney")

	out.Reset()
	require.NoError(t, runHistory(ctx, &out, st, store.CalculationFilter{TransportMode: model.TransportAir}, ""))
	assert.NotContains(t, out.String(), "NYC → LAX")

	path := filepath.Join(t.TempDir(), "history.xlsx")
	require.NoError(t, runHistory(ctx, &out, st, store.CalculationFilter{}, path))
	_, err = os.Stat(path)
	require.NoError(t, err)

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)
	assert.Len(t, f.Sheets[0].Rows, 3)
}

func TestRunCacheClearAndPing(t *testing.T) {
	ctx := context.Background()
	mem := cache.NewMemory(nil)
	require.NoError(t, mem.Set(ctx, "calc:NYC:LAX:10:ground", []byte("{}"), 0))

	var out bytes.Buffer
	require.NoError(t, runCachePing(ctx, &out, mem))
	assert.Equal(t, "PONG\n", out.String())

	out.Reset()
	require.NoError(t, runCacheClear(ctx, &out, mem))
	assert.Equal(t, "Cache cleared\n", out.String())
	assert.Zero(t, mem.Len())
}

func TestDescribeError(t *testing.T) {
	err := describeError(&calc.UnknownCityError{Side: geo.SideOrigin, City: "Gotham", Parsed: &model.Extraction{}})
	assert.Equal(t, "Unknown origin city: Gotham. "+calc.UnknownCitySuggestion, err.Error())

	err = describeError(&calc.ExtractionIncompleteError{Parsed: model.Extraction{Origin: "Tokyo"}})
	assert.Contains(t, err.Error(), `parsed origin "Tokyo", destination ""`)

	plain := errors.New("boom")
	assert.Same(t, plain, describeError(plain))
}
