package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitTracerProviderDisabled(t *testing.T) {
	t.Parallel()

	tp, shutdown, err := InitTracerProvider(context.Background(), Config{})
	require.NoError(t, err)
	assert.Nil(t, tp)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitTracerProviderEnabled(t *testing.T) {
	tp, shutdown, err := InitTracerProvider(context.Background(), Config{Enabled: true, ServiceName: "pagewatch-test"})
	require.NoError(t, err)
	require.NotNil(t, tp)

	_, span := tp.Tracer("test").Start(context.Background(), "span")
	assert.True(t, span.SpanContext().IsValid())
	span.End()
	assert.NoError(t, shutdown(context.Background()))
}
