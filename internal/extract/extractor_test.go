package extract

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/carbon-cli/internal/model"
	"github.com/sells-group/carbon-cli/internal/monitoring"
	"github.com/sells-group/carbon-cli/internal/resilience"
	"github.com/sells-group/carbon-cli/pkg/anthropic"
)

// MockClient implements anthropic.Client for testing.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func reply(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		ID:      "msg_1",
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
		Usage:   anthropic.TokenUsage{InputTokens: 200, OutputTokens: 60},
	}
}

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
}

const shenzhenReply = `{"origin": "Shenzhen", "destination": "Los Angeles", "weight_kg": 500, "transport_mode": "sea", "confidence": 0.92, "reasoning": "Electronics by container ship"}`

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt("ship 500kg from Shenzhen to LA by boat")
	assert.Contains(t, p, `Request: "ship 500kg from Shenzhen to LA by boat"`)
	assert.Contains(t, p, "Return ONLY valid JSON")
	assert.NotContains(t, p, "{{query}}")
}

func TestParse(t *testing.T) {
	sea := model.TransportSea

	tests := []struct {
		name string
		text string
		want model.Extraction
	}{
		{
			name: "plain json",
			text: shenzhenReply,
			want: model.Extraction{
				Origin: "Shenzhen", Destination: "Los Angeles", WeightKg: ptr(500.0),
				TransportMode: &sea, Confidence: 0.92, Reasoning: "Electronics by container ship",
			},
		},
		{
			name: "fenced",
			text: "```json\n" + shenzhenReply + "\n```",
			want: model.Extraction{
				Origin: "Shenzhen", Destination: "Los Angeles", WeightKg: ptr(500.0),
				TransportMode: &sea, Confidence: 0.92, Reasoning: "Electronics by container ship",
			},
		},
		{
			name: "nulls",
			text: `{"origin":"NYC","destination":"London","weight_kg":null,"transport_mode":null,"confidence":0.5,"reasoning":"r"}`,
			want: model.Extraction{Origin: "NYC", Destination: "London", Confidence: 0.5, Reasoning: "r"},
		},
		{
			name: "unknown mode dropped",
			text: `{"origin":"NYC","destination":"London","transport_mode":"rail","confidence":0.5}`,
			want: model.Extraction{Origin: "NYC", Destination: "London", Confidence: 0.5},
		},
		{
			name: "mode case normalized",
			text: `{"origin":"NYC","destination":"London","transport_mode":"Sea"}`,
			want: model.Extraction{Origin: "NYC", Destination: "London", TransportMode: &sea},
		},
		{
			name: "non-positive weight dropped",
			text: `{"origin":"NYC","destination":"London","weight_kg":0}`,
			want: model.Extraction{Origin: "NYC", Destination: "London"},
		},
		{
			name: "confidence clamped high",
			text: `{"origin":"A","destination":"B","confidence":1.7}`,
			want: model.Extraction{Origin: "A", Destination: "B", Confidence: 1},
		},
		{
			name: "confidence clamped low",
			text: `{"origin":"A","destination":"B","confidence":-0.2}`,
			want: model.Extraction{Origin: "A", Destination: "B", Confidence: 0},
		},
		{
			name: "partial",
			text: `{"origin":"Tokyo","destination":"","confidence":0.3,"reasoning":"no destination"}`,
			want: model.Extraction{Origin: "Tokyo", Confidence: 0.3, Reasoning: "no destination"},
		},
		{name: "prose", text: "I think this ships from Tokyo.", want: Failed()},
		{name: "empty", text: "", want: Failed()},
		{name: "wrong types", text: `{"origin":"A","destination":"B","weight_kg":"five"}`, want: Failed()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse(tt.text))
		})
	}
}

func TestFailed(t *testing.T) {
	f := Failed()
	assert.Empty(t, f.Origin)
	assert.Empty(t, f.Destination)
	assert.Nil(t, f.WeightKg)
	assert.Nil(t, f.TransportMode)
	assert.Zero(t, f.Confidence)
	assert.Equal(t, "Failed to parse response", f.Reasoning)
}

func TestExtract_Success(t *testing.T) {
	mc := new(MockClient)
	mc.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == DefaultModel &&
			req.MaxTokens == DefaultMaxTokens &&
			len(req.Messages) == 1 &&
			req.Messages[0].Role == "user" &&
			req.Messages[0].Content == BuildPrompt("ship from Shenzhen")
	})).Return(reply(shenzhenReply), nil).Once()

	metrics := monitoring.NewMetricsForTesting()
	ex := New(mc, WithMetrics(metrics))

	out, err := ex.Extract(context.Background(), "ship from Shenzhen")
	require.NoError(t, err)
	assert.Equal(t, "Shenzhen", out.Origin)
	assert.Equal(t, "Los Angeles", out.Destination)
	assert.True(t, out.Complete())
	mc.AssertExpectations(t)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Extractions.WithLabelValues(monitoring.OutcomeSuccess)))
}

func TestExtract_UnparseableReplyIsNotAnError(t *testing.T) {
	mc := new(MockClient)
	mc.On("CreateMessage", mock.Anything, mock.Anything).Return(reply("Sorry, I can't help."), nil)

	metrics := monitoring.NewMetricsForTesting()
	out, err := New(mc, WithMetrics(metrics)).Extract(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, Failed(), *out)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Extractions.WithLabelValues(monitoring.OutcomeUnparsed)))
}

func TestExtract_RetriesTransient(t *testing.T) {
	mc := new(MockClient)
	mc.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, resilience.NewTransientError(errors.New("overloaded"), 529)).Twice()
	mc.On("CreateMessage", mock.Anything, mock.Anything).Return(reply(shenzhenReply), nil).Once()

	out, err := New(mc, WithRetry(fastRetry())).Extract(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "Shenzhen", out.Origin)
	mc.AssertNumberOfCalls(t, "CreateMessage", 3)
}

func TestExtract_PermanentFailure(t *testing.T) {
	mc := new(MockClient)
	mc.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, errors.New("invalid x-api-key"))

	metrics := monitoring.NewMetricsForTesting()
	_, err := New(mc, WithRetry(fastRetry()), WithMetrics(metrics)).Extract(context.Background(), "q")
	require.Error(t, err)

	var up *UpstreamError
	require.True(t, errors.As(err, &up))
	assert.Contains(t, err.Error(), "invalid x-api-key")
	mc.AssertNumberOfCalls(t, "CreateMessage", 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Extractions.WithLabelValues(monitoring.OutcomeError)))
}

func TestExtract_CircuitOpens(t *testing.T) {
	mc := new(MockClient)
	mc.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, resilience.NewTransientError(errors.New("503"), 503))

	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Hour,
		ShouldTrip:       resilience.IsTransient,
	})
	ex := New(mc, WithRetry(resilience.RetryConfig{MaxAttempts: 1}), WithBreaker(cb))

	for i := 0; i < 2; i++ {
		_, err := ex.Extract(context.Background(), "q")
		require.Error(t, err)
		assert.False(t, errors.Is(err, resilience.ErrCircuitOpen))
	}

	_, err := ex.Extract(context.Background(), "q")
	require.Error(t, err)
	var up *UpstreamError
	assert.True(t, errors.As(err, &up))
	assert.True(t, errors.Is(err, resilience.ErrCircuitOpen))
	mc.AssertNumberOfCalls(t, "CreateMessage", 2)

	pingErr := ex.Ping(context.Background())
	assert.ErrorIs(t, pingErr, resilience.ErrCircuitOpen)
	assert.Contains(t, pingErr.Error(), "2 consecutive failures")
}

func TestExtract_RateLimitHonoursContext(t *testing.T) {
	mc := new(MockClient)
	ex := New(mc, WithRateLimit(0.001, 1))

	mc.On("CreateMessage", mock.Anything, mock.Anything).Return(reply(shenzhenReply), nil).Once()
	_, err := ex.Extract(context.Background(), "first uses the burst")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ex.Extract(ctx, "second must wait")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extract: rate limit wait")
	assert.ErrorIs(t, err, ErrRateLimited)
	mc.AssertNumberOfCalls(t, "CreateMessage", 1)
}

func TestOptions(t *testing.T) {
	ex := New(new(MockClient),
		WithModel("claude-haiku-4-5-20251001"),
		WithMaxTokens(256),
		WithTimeout(5*time.Second),
		WithRateLimit(0, 0),
	)
	assert.Equal(t, "claude-haiku-4-5-20251001", ex.model)
	assert.Equal(t, int64(256), ex.maxTokens)
	assert.Equal(t, 5*time.Second, ex.timeout)
	assert.Nil(t, ex.limiter)
	assert.NoError(t, ex.Ping(context.Background()))

	defaults := New(new(MockClient), WithModel(""), WithMaxTokens(0))
	assert.Equal(t, DefaultModel, defaults.model)
	assert.Equal(t, int64(DefaultMaxTokens), defaults.maxTokens)
}

func ptr[T any](v T) *T { return &v }
