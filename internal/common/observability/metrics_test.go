package observability

import (
	"context"
	"testing"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNew_RecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	obs := New("test", WithRegisterer(promclient.NewRegistry()), WithSpanProcessor(recorder), WithoutGlobal())
	defer obs.Shutdown()

	_, span := obs.StartSpan(context.Background(), "entitlement.check", attribute.String("path", "subscription"))
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "entitlement.check", ended[0].Name())
	assert.Contains(t, ended[0].Attributes(), attribute.String("path", "subscription"))
}

func TestNew_ExportsDecisionMetrics(t *testing.T) {
	reg := promclient.NewRegistry()
	obs := New("test", WithRegisterer(reg), WithoutGlobal())
	defer obs.Shutdown()

	obs.RecordDecision(context.Background(), "subscription", "granted", 3*time.Millisecond)
	obs.RecordJobProcessed(context.Background(), "completed")

	families, err := reg.Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["entitlement_decisions_total"], "gathered: %v", names)
	assert.True(t, names["jobs_processed_total"], "gathered: %v", names)
}

func TestNop_DoesNotPanic(t *testing.T) {
	obs := NewNop()
	assert.NotPanics(t, func() {
		ctx, span := obs.StartSpan(context.Background(), "x")
		span.End()
		obs.RecordDecision(ctx, "credits", "denied", time.Millisecond)
		obs.RecordJobDuration(ctx, time.Millisecond, "completed")
		obs.Shutdown()
	})
}
