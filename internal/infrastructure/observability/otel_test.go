package observability

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	otellog "go.opentelemetry.io/otel/log"
)

func TestInitMetrics_NoopProvider(t *testing.T) {
	metrics, err := InitMetrics()
	require.NoError(t, err)
	require.NotNil(t, metrics)

	ctx := context.Background()
	assert.NotPanics(t, func() {
		RecordQueueMutation(ctx, metrics, "add")
		RecordRecompute(ctx, metrics, 3*time.Millisecond, 2)
		RecordCallNext(ctx, metrics, "empty")
		RecordBroadcastFailure(ctx, metrics, "position")
		RecordRequestMetric(ctx, metrics, "GET", "/health", 200, time.Millisecond)
	})
}

func TestRecorders_NilMetricsAreNoops(t *testing.T) {
	ctx := context.Background()
	assert.NotPanics(t, func() {
		RecordQueueMutation(ctx, nil, "add")
		RecordCacheHit(ctx, nil, "stats:f1")
		RecordCacheMiss(ctx, nil, "stats:f1")
	})
}

func TestOTelSeverity(t *testing.T) {
	assert.Equal(t, otellog.SeverityInfo, otelSeverity(zerolog.InfoLevel))
	assert.Equal(t, otellog.SeverityWarn, otelSeverity(zerolog.WarnLevel))
	assert.Equal(t, otellog.SeverityError, otelSeverity(zerolog.ErrorLevel))
	assert.Equal(t, otellog.SeverityFatal, otelSeverity(zerolog.PanicLevel))
}

func TestLoggerFromContext_WithoutSpan(t *testing.T) {
	logger := LoggerFromContext(context.Background())
	require.NotNil(t, logger)
}
