package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entitystore/observability/metrics"
	"entitystore/observability/types"
)

type closeRecorder struct {
	bytes.Buffer
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func TestNewProvider(t *testing.T) {
	config := &Config{
		ServiceName: "entity-service",
		Environment: "test",
		LogLevel:    "info",
	}

	provider := NewProvider(config)

	assert.NotNil(t, provider)
	assert.Implements(t, (*Provider)(nil), provider)
	assert.NotNil(t, config.LogOutput)
	assert.NotNil(t, config.Registerer)
}

func TestDefaultProvider_Logger(t *testing.T) {
	var buf bytes.Buffer
	config := &Config{
		ServiceName: "entity-service",
		Environment: "test",
		LogLevel:    "info",
		LogOutput:   &buf,
		AdditionalFields: types.Fields{
			"version": "1.0.0",
		},
		Registerer: prometheus.NewRegistry(),
	}

	provider := NewProvider(config)
	defer provider.Close()

	logger1 := provider.Logger("adapter")
	logger2 := provider.Logger("adapter")
	logger3 := provider.Logger("worker")

	assert.Same(t, logger1, logger2)
	assert.NotSame(t, logger1, logger3)

	logger1.Info(context.Background(), "connected", nil)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "entity-service.adapter", entry["service"])
	assert.Equal(t, "adapter", entry["component"])
	assert.Equal(t, "1.0.0", entry["version"])
}

func TestDefaultProvider_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	provider := NewProvider(&Config{
		ServiceName: "entity-service",
		Environment: "test",
		Registerer:  reg,
	})
	defer provider.Close()

	metrics1 := provider.Metrics("adapter")
	metrics2 := provider.Metrics("adapter")
	metrics3 := provider.Metrics("worker")

	assert.Same(t, metrics1, metrics2)
	assert.NotSame(t, metrics1, metrics3)

	metrics1.RecordSuccess("save")

	count, err := testutil.GatherAndCount(reg, "entity_service_adapter_processed_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDefaultProvider_CloudWatchMetrics(t *testing.T) {
	provider := NewProvider(&Config{
		ServiceName: "entity-service",
		Registerer:  prometheus.NewRegistry(),
	})
	sink := metrics.NewCloudWatchSink(nil, "entity-service/test")
	provider.UseCloudWatch(sink)

	m := provider.Metrics("adapter")

	assert.IsType(t, &metrics.CloudWatchMetrics{}, m)
	m.RecordSuccess("save")
	assert.Equal(t, 1, sink.Pending())
}

func TestDefaultProvider_Close(t *testing.T) {
	t.Run("close with stdout", func(t *testing.T) {
		provider := NewProvider(&Config{ServiceName: "test"})
		assert.NoError(t, provider.Close())
	})

	t.Run("close with buffer", func(t *testing.T) {
		var buf bytes.Buffer
		provider := NewProvider(&Config{ServiceName: "test", LogOutput: &buf})
		assert.NoError(t, provider.Close())
	})

	t.Run("close with closer", func(t *testing.T) {
		out := &closeRecorder{}
		provider := NewProvider(&Config{ServiceName: "test", LogOutput: out})
		assert.NoError(t, provider.Close())
		assert.True(t, out.closed)
	})
}
