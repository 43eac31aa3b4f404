package tracer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/lk2023060901/snap-garden-go/pkg/log"
	"github.com/lk2023060901/snap-garden-go/pkg/util/merr"
)

func installRecorder(t *testing.T, cfg Config) *tracetest.SpanRecorder {
	rec := tracetest.NewSpanRecorder()
	shutdown, err := install(context.Background(), cfg, sdktrace.WithSpanProcessor(rec))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = shutdown(context.Background())
		otel.SetTracerProvider(noop.NewTracerProvider())
	})
	return rec
}

func TestSetupDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInvalidSampleRatio(t *testing.T) {
	_, err := Setup(context.Background(), Config{Endpoint: "http://127.0.0.1:4318", SampleRatio: 2})
	assert.ErrorIs(t, err, merr.ErrParameterInvalid)
}

func TestIntentSpansExported(t *testing.T) {
	rec := installRecorder(t, Config{SampleRatio: 1})

	ctx, span := log.NewIntentContext("gateway", "create")
	assert.True(t, span.SpanContext().IsValid())
	assert.NotNil(t, ctx)
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "create", ended[0].Name())
	assert.Contains(t, ended[0].Resource().Attributes(), semconv.ServiceName(defaultServiceName))
}

func TestZeroRatioDropsRootSpans(t *testing.T) {
	rec := installRecorder(t, Config{ServiceName: "snap-test"})

	_, span := log.NewIntentContext("gateway", "join")
	span.End()
	assert.Empty(t, rec.Ended())
}
