package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/angelmondragon/fieldstock-backend/pkg/config"
)

func TestInitDisabledIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), config.TracingConfig{Enabled: false}, "test", "test", nil)
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestEndRecordsError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	_, ok := Tracer().Start(context.Background(), "ok")
	End(ok, nil)
	_, failed := Tracer().Start(context.Background(), "failed")
	End(failed, errors.New("field service timeout"))

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	require.Equal(t, codes.Unset, spans[0].Status().Code)
	require.Equal(t, codes.Error, spans[1].Status().Code)
	require.Equal(t, "field service timeout", spans[1].Status().Description)
	require.Len(t, spans[1].Events(), 1)
}

func TestClampRatio(t *testing.T) {
	require.Equal(t, 0.0, clampRatio(-1))
	require.Equal(t, 1.0, clampRatio(3))
	require.Equal(t, 0.25, clampRatio(0.25))
}
