package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/davidbz/council-relay/internal/telemetry"
)

func sample(status, attempt int) telemetry.Sample {
	return telemetry.Sample{
		URL:       "http://council.test/api/council",
		Method:    "POST",
		Status:    status,
		Attempt:   attempt,
		Timestamp: time.Now(),
		Duration:  40 * time.Millisecond,
	}
}

func TestBus(t *testing.T) {
	t.Run("should report no sample before the first publish", func(t *testing.T) {
		bus := telemetry.NewBus()

		_, ok := bus.Last()

		require.False(t, ok)
	})

	t.Run("should keep only the latest sample", func(t *testing.T) {
		bus := telemetry.NewBus()

		bus.Publish(context.Background(), sample(429, 1))
		bus.Publish(context.Background(), sample(200, 2))

		last, ok := bus.Last()
		require.True(t, ok)
		require.Equal(t, 200, last.Status)
		require.Equal(t, 2, last.Attempt)
	})

	t.Run("should stop notifying after unsubscribe", func(t *testing.T) {
		bus := telemetry.NewBus()
		var received []telemetry.Sample

		unsubscribe := bus.Subscribe(func(s telemetry.Sample) {
			received = append(received, s)
		})
		bus.Publish(context.Background(), sample(200, 1))
		unsubscribe()
		unsubscribe()
		bus.Publish(context.Background(), sample(500, 1))

		require.Len(t, received, 1)
		require.Equal(t, 200, received[0].Status)
	})

	t.Run("should survive a panicking listener", func(t *testing.T) {
		bus := telemetry.NewBus()
		calls := 0

		bus.Subscribe(func(telemetry.Sample) { panic("boom") })
		bus.Subscribe(func(telemetry.Sample) { calls++ })

		require.NotPanics(t, func() {
			bus.Publish(context.Background(), sample(200, 1))
		})
		require.Equal(t, 1, calls)
	})
}

func TestExporter(t *testing.T) {
	reg := prometheus.NewRegistry()
	exporter := telemetry.NewExporter(reg)
	bus := telemetry.NewBus()
	detach := exporter.Attach(bus)
	defer detach()

	bus.Publish(context.Background(), sample(429, 1))
	bus.Publish(context.Background(), sample(200, 2))

	count, err := testutil.GatherAndCount(reg, "council_request_attempts_total")
	require.NoError(t, err)
	require.Equal(t, 2, count)
}
