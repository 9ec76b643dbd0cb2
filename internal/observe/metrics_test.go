package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func sumWith(t *testing.T, m *metricdata.Metrics, key, value string) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("%s: expected Sum[int64], got %T", m.Name, m.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			total += dp.Value
		}
	}
	return total
}

func TestRecordHelpers(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordTransition(ctx, "discovering", "calling")
	m.RecordTransition(ctx, "calling", "connected")
	m.RecordNegotiationFailure(ctx, "renegotiation")
	m.RecordBufferedCandidate(ctx, "inbound")
	m.RecordBufferedCandidate(ctx, "inbound")
	m.RecordRelay(ctx, "user:call")
	m.RecordRejectedJoin(ctx, "full")

	rm := collect(t, reader)

	tests := []struct {
		metric, key, value string
		want               int64
	}{
		{"medimate.session.transitions", "to", "connected", 1},
		{"medimate.session.negotiation_failures", "phase", "renegotiation", 1},
		{"medimate.peer.candidates_buffered", "direction", "inbound", 2},
		{"medimate.rendezvous.messages_relayed", "type", "user:call", 1},
		{"medimate.rendezvous.joins_rejected", "reason", "full", 1},
	}
	for _, tt := range tests {
		t.Run(tt.metric, func(t *testing.T) {
			found := findMetric(rm, tt.metric)
			if found == nil {
				t.Fatalf("metric %s not found", tt.metric)
			}
			if got := sumWith(t, found, tt.key, tt.value); got != tt.want {
				t.Errorf("%s{%s=%s} = %d, want %d", tt.metric, tt.key, tt.value, got, tt.want)
			}
		})
	}
}

func TestUpDownCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveRooms.Add(ctx, 2)
	m.ActiveRooms.Add(ctx, -1)

	found := findMetric(collect(t, reader), "medimate.rendezvous.active_rooms")
	if found == nil {
		t.Fatal("active_rooms not found")
	}
	sum := found.Data.(metricdata.Sum[int64])
	if len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 1 {
		t.Errorf("active_rooms = %+v, want 1", sum.DataPoints)
	}
}
