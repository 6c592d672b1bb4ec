package tracing

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finpasser/internal/config"
)

func TestInjectExtractRoundTrip(t *testing.T) {
	tp, err := Init(config.TracingConfig{}, "tracing-test")
	require.NoError(t, err)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("test").Start(context.Background(), "publish")
	defer span.End()

	headers := InjectTraceContext(ctx, []kafka.Header{{Key: "x-existing", Value: []byte("1")}})
	require.Len(t, headers, 2)
	assert.Equal(t, "x-existing", headers[0].Key)
	assert.Equal(t, "traceparent", headers[1].Key)

	consumerCtx, consumerSpan := StartConsumeSpan(context.Background(), kafka.Message{Topic: "upload-events", Key: []byte("7654321"), Headers: headers})
	defer consumerSpan.End()
	assert.Equal(t, TraceID(ctx), TraceID(consumerCtx))
	assert.NotEmpty(t, TraceID(consumerCtx))
}

func TestTraceID_NoSpan(t *testing.T) {
	assert.Empty(t, TraceID(context.Background()))
}

func TestCarrierSetReplaces(t *testing.T) {
	c := &headerCarrier{}
	c.Set("k", "a")
	c.Set("k", "b")
	assert.Equal(t, "b", c.Get("k"))
	assert.Equal(t, []string{"k"}, c.Keys())
}

func TestSampler(t *testing.T) {
	tests := []struct {
		typ  string
		want string
	}{
		{"always_off", "AlwaysOffSampler"},
		{"traceidratio", "TraceIDRatioBased{0.5}"},
		{"parentbased_always_on", "ParentBased{root:AlwaysOnSampler"},
		{"", "AlwaysOnSampler"},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			got := sampler(config.SamplerConfig{Type: tt.typ, Param: 0.5}).Description()
			assert.Contains(t, got, tt.want)
		})
	}
}

func TestShutdown_NilProvider(t *testing.T) {
	var tp *TracerProvider
	assert.NoError(t, tp.Shutdown(context.Background()))
}
