package factor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/carbon-cli/internal/cache"
	"github.com/sells-group/carbon-cli/internal/model"
	"github.com/sells-group/carbon-cli/internal/monitoring"
)

// MockSource implements Source for testing.
type MockSource struct {
	mock.Mock
}

func (m *MockSource) GetEmissionFactor(ctx context.Context, mode model.TransportMode) (*model.EmissionFactor, error) {
	args := m.Called(ctx, mode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.EmissionFactor), args.Error(1)
}

func (m *MockSource) ListEmissionFactors(ctx context.Context) ([]model.EmissionFactor, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.EmissionFactor), args.Error(1)
}

func (m *MockSource) UpsertEmissionFactors(ctx context.Context, factors ...model.EmissionFactor) error {
	args := m.Called(ctx, factors)
	return args.Error(0)
}

// brokenCache fails every operation.
type brokenCache struct{}

func (brokenCache) Get(context.Context, string) ([]byte, error) { return nil, errors.New("redis down") }
func (brokenCache) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("redis down")
}
func (brokenCache) Delete(context.Context, ...string) error { return errors.New("redis down") }
func (brokenCache) Flush(context.Context) error             { return errors.New("redis down") }
func (brokenCache) Ping(context.Context) error              { return errors.New("redis down") }
func (brokenCache) Close() error                            { return nil }

func ground(v float64) *model.EmissionFactor {
	return &model.EmissionFactor{TransportMode: model.TransportGround, FactorPerKmKg: v}
}

func TestKey(t *testing.T) {
	assert.Equal(t, "emission_factor:ground", Key(model.TransportGround))
	assert.Equal(t, "emission_factor:sea", Key(model.TransportSea))
}

func TestFactor_CacheAside(t *testing.T) {
	src := new(MockSource)
	src.On("GetEmissionFactor", mock.Anything, model.TransportGround).Return(ground(0.1), nil).Once()

	clock := clockwork.NewFakeClock()
	mem := cache.NewMemory(clock)
	metrics := monitoring.NewMetricsForTesting()
	s := New(src, mem, WithMetrics(metrics))
	ctx := context.Background()

	v, err := s.Factor(ctx, model.TransportGround)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, v, 1e-12)

	// Second lookup is served by the cache; the mock allows one durable read.
	v, err = s.Factor(ctx, model.TransportGround)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, v, 1e-12)
	src.AssertExpectations(t)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheLookups.WithLabelValues(monitoring.LayerFactor, monitoring.ResultMiss)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheLookups.WithLabelValues(monitoring.LayerFactor, monitoring.ResultHit)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.FactorStoreReads.WithLabelValues(monitoring.OutcomeSuccess)))
}

func TestFactor_NotServedPastTTL(t *testing.T) {
	src := new(MockSource)
	src.On("GetEmissionFactor", mock.Anything, model.TransportAir).
		Return(&model.EmissionFactor{TransportMode: model.TransportAir, FactorPerKmKg: 0.5}, nil).Once()
	src.On("GetEmissionFactor", mock.Anything, model.TransportAir).
		Return(&model.EmissionFactor{TransportMode: model.TransportAir, FactorPerKmKg: 0.6}, nil).Once()

	clock := clockwork.NewFakeClock()
	s := New(src, cache.NewMemory(clock))
	ctx := context.Background()

	v, err := s.Factor(ctx, model.TransportAir)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, v, 1e-12)

	clock.Advance(DefaultTTL - time.Second)
	v, err = s.Factor(ctx, model.TransportAir)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, v, 1e-12, "still within TTL")

	clock.Advance(time.Second)
	v, err = s.Factor(ctx, model.TransportAir)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, v, 1e-12, "expired entry re-read from durable store")
	src.AssertExpectations(t)
}

func TestFactor_NotFound(t *testing.T) {
	src := new(MockSource)
	src.On("GetEmissionFactor", mock.Anything, model.TransportMode("rail")).Return(nil, nil)

	mem := cache.NewMemory(nil)
	s := New(src, mem)

	_, err := s.Factor(context.Background(), "rail")
	require.Error(t, err)

	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, model.TransportMode("rail"), nf.Mode)
	assert.Equal(t, "Unknown transport mode: rail", err.Error())
	assert.Equal(t, 0, mem.Len(), "misses are not cached")
}

func TestFactor_DurableFailureIsNotNotFound(t *testing.T) {
	src := new(MockSource)
	src.On("GetEmissionFactor", mock.Anything, model.TransportSea).Return(nil, errors.New("connection refused"))

	s := New(src, cache.NewMemory(nil))

	_, err := s.Factor(context.Background(), model.TransportSea)
	require.Error(t, err)

	var nf *NotFoundError
	assert.False(t, errors.As(err, &nf))
	assert.Contains(t, err.Error(), "factor: read sea")
}

func TestFactor_CacheOutageFallsBackToStore(t *testing.T) {
	src := new(MockSource)
	src.On("GetEmissionFactor", mock.Anything, model.TransportGround).Return(ground(0.1), nil).Twice()

	metrics := monitoring.NewMetricsForTesting()
	s := New(src, brokenCache{}, WithMetrics(metrics))

	for i := 0; i < 2; i++ {
		v, err := s.Factor(context.Background(), model.TransportGround)
		require.NoError(t, err)
		assert.InDelta(t, 0.1, v, 1e-12)
	}
	src.AssertExpectations(t)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.CacheWriteErrors.WithLabelValues(monitoring.LayerFactor)))
}

func TestFactor_CorruptCachedValueIsIgnored(t *testing.T) {
	src := new(MockSource)
	src.On("GetEmissionFactor", mock.Anything, model.TransportGround).Return(ground(0.1), nil).Once()

	mem := cache.NewMemory(nil)
	ctx := context.Background()
	require.NoError(t, mem.Set(ctx, Key(model.TransportGround), []byte(`"abc"`), time.Hour))

	s := New(src, mem)
	v, err := s.Factor(ctx, model.TransportGround)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, v, 1e-12)

	// The durable value replaced the corrupt entry.
	raw, err := mem.Get(ctx, Key(model.TransportGround))
	require.NoError(t, err)
	assert.Equal(t, "0.1", string(raw))
}

func TestSet_InvalidatesCache(t *testing.T) {
	src := new(MockSource)
	src.On("GetEmissionFactor", mock.Anything, model.TransportGround).Return(ground(0.1), nil).Once()
	src.On("UpsertEmissionFactors", mock.Anything, []model.EmissionFactor{*ground(0.2)}).Return(nil)
	src.On("GetEmissionFactor", mock.Anything, model.TransportGround).Return(ground(0.2), nil).Once()

	s := New(src, cache.NewMemory(nil))
	ctx := context.Background()

	v, err := s.Factor(ctx, model.TransportGround)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, v, 1e-12)

	require.NoError(t, s.Set(ctx, *ground(0.2)))

	v, err = s.Factor(ctx, model.TransportGround)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, v, 1e-12)
	src.AssertExpectations(t)
}

func TestSet_StoreError(t *testing.T) {
	src := new(MockSource)
	src.On("UpsertEmissionFactors", mock.Anything, mock.Anything).Return(errors.New("check constraint"))

	err := New(src, cache.NewMemory(nil)).Set(context.Background(), *ground(-1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "factor: set")
}

func TestWarm(t *testing.T) {
	src := new(MockSource)
	src.On("ListEmissionFactors", mock.Anything).Return([]model.EmissionFactor{
		{TransportMode: model.TransportGround, FactorPerKmKg: 0.1},
		{TransportMode: model.TransportAir, FactorPerKmKg: 0.5},
		{TransportMode: model.TransportSea, FactorPerKmKg: 0.01},
	}, nil)

	mem := cache.NewMemory(nil)
	s := New(src, mem)
	ctx := context.Background()

	n, err := s.Warm(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// All lookups now come from the cache; GetEmissionFactor was never stubbed.
	for _, mode := range model.TransportModes {
		_, err := s.Factor(ctx, mode)
		require.NoError(t, err)
	}
	src.AssertNotCalled(t, "GetEmissionFactor", mock.Anything, mock.Anything)
}

func TestWarm_CacheFailure(t *testing.T) {
	src := new(MockSource)
	src.On("ListEmissionFactors", mock.Anything).Return([]model.EmissionFactor{*ground(0.1)}, nil)

	_, err := New(src, brokenCache{}).Warm(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "factor: warm ground")
}

func TestList_Error(t *testing.T) {
	src := new(MockSource)
	src.On("ListEmissionFactors", mock.Anything).Return(nil, errors.New("timeout"))

	_, err := New(src, cache.NewMemory(nil)).List(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "factor: list")
}
