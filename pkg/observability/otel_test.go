package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitOTel_Disabled(t *testing.T) {
	providers, err := InitOTel(context.Background(), OTelConfig{Enabled: false}, nil)
	assert.NoError(t, err)
	assert.Nil(t, providers)
}

func TestInitOTel_MissingEndpoint(t *testing.T) {
	_, err := InitOTel(context.Background(), OTelConfig{Enabled: true}, nil)
	assert.Error(t, err)
}

func TestShutdownOTel_Nil(t *testing.T) {
	assert.NoError(t, ShutdownOTel(context.Background(), nil, nil))
}

func TestShutdownOTel_Providers(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	err := ShutdownOTel(context.Background(), &OTelProviders{TracerProvider: tp}, nil)
	assert.NoError(t, err)
}

func TestOTelProviders_ShutdownNil(t *testing.T) {
	var p *OTelProviders
	assert.NoError(t, p.Shutdown(context.Background()))
	assert.NoError(t, (&OTelProviders{}).Shutdown(context.Background()))
}

func TestOTelConfig_Sampler(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample().Description(), OTelConfig{}.sampler().Description())
	assert.Equal(t, sdktrace.AlwaysSample().Description(), OTelConfig{SampleRatio: 1}.sampler().Description())
	assert.Contains(t, OTelConfig{SampleRatio: 0.25}.sampler().Description(), "TraceIDRatioBased{0.25}")

	assert.Nil(t, OTelConfig{}.dialOptions())
	assert.Len(t, OTelConfig{Insecure: true}.dialOptions(), 1)
}

func TestFailSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	_, ok := tp.Tracer("test").Start(context.Background(), "ok")
	FailSpan(ok, nil)
	ok.End()

	_, failed := tp.Tracer("test").Start(context.Background(), "failed")
	FailSpan(failed, errors.New("scan root unreadable"))
	failed.End()

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "scan root unreadable", spans[1].Status().Description)
	assert.Len(t, spans[1].Events(), 1)
}

func TestWithTraceContext(t *testing.T) {
	entry := logrus.NewEntry(logrus.New())

	// no span
	assert.NotContains(t, WithTraceContext(context.Background(), entry).Data, "trace_id")

	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	withTrace := WithTraceContext(ctx, entry)
	require.Contains(t, withTrace.Data, "trace_id")
	assert.Equal(t, span.SpanContext().TraceID().String(), withTrace.Data["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), withTrace.Data["span_id"])
}
