// Package observe holds the OpenTelemetry instruments shared by the
// rendezvous service and the call engine. Tests build their own Metrics from
// a ManualReader-backed provider; production code uses DefaultMetrics, bound
// to the global provider installed by InitProvider.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/atharve16/MediMate"

// Metrics holds every instrument. The OTel types synchronise themselves.
type Metrics struct {
	// Rendezvous service.
	ActiveRooms        metric.Int64UpDownCounter
	ActiveParticipants metric.Int64UpDownCounter
	MessagesRelayed    metric.Int64Counter
	JoinsRejected      metric.Int64Counter

	// Call engine.
	StateTransitions    metric.Int64Counter
	NegotiationFailures metric.Int64Counter
	CandidatesBuffered  metric.Int64Counter
	CallDuration        metric.Float64Histogram
}

var callBuckets = []float64{5, 15, 30, 60, 120, 300, 600, 1200, 1800, 3600}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ActiveRooms, err = m.Int64UpDownCounter("medimate.rendezvous.active_rooms",
		metric.WithDescription("Rooms with at least one participant."),
	); err != nil {
		return nil, err
	}
	if met.ActiveParticipants, err = m.Int64UpDownCounter("medimate.rendezvous.active_participants",
		metric.WithDescription("Registered websocket participants."),
	); err != nil {
		return nil, err
	}
	if met.MessagesRelayed, err = m.Int64Counter("medimate.rendezvous.messages_relayed",
		metric.WithDescription("Directed messages relayed between participants, by type."),
	); err != nil {
		return nil, err
	}
	if met.JoinsRejected, err = m.Int64Counter("medimate.rendezvous.joins_rejected",
		metric.WithDescription("Room joins refused, by reason."),
	); err != nil {
		return nil, err
	}

	if met.StateTransitions, err = m.Int64Counter("medimate.session.transitions",
		metric.WithDescription("Call session state transitions, by from and to state."),
	); err != nil {
		return nil, err
	}
	if met.NegotiationFailures, err = m.Int64Counter("medimate.session.negotiation_failures",
		metric.WithDescription("Failed offer/answer exchanges, by phase."),
	); err != nil {
		return nil, err
	}
	if met.CandidatesBuffered, err = m.Int64Counter("medimate.peer.candidates_buffered",
		metric.WithDescription("ICE candidates held back until they could be applied or sent, by direction."),
	); err != nil {
		return nil, err
	}
	if met.CallDuration, err = m.Float64Histogram("medimate.session.call_duration",
		metric.WithDescription("Time spent connected per call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(callBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level instance bound to the global
// meter provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: creating default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordTransition counts one session state change.
func (m *Metrics) RecordTransition(ctx context.Context, from, to string) {
	m.StateTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// RecordNegotiationFailure counts a failed exchange. phase is "initial" or
// "renegotiation".
func (m *Metrics) RecordNegotiationFailure(ctx context.Context, phase string) {
	m.NegotiationFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("phase", phase)))
}

// RecordBufferedCandidate counts a held-back candidate. direction is
// "inbound" or "outbound".
func (m *Metrics) RecordBufferedCandidate(ctx context.Context, direction string) {
	m.CandidatesBuffered.Add(ctx, 1, metric.WithAttributes(attribute.String("direction", direction)))
}

// RecordRelay counts one relayed message.
func (m *Metrics) RecordRelay(ctx context.Context, msgType string) {
	m.MessagesRelayed.Add(ctx, 1, metric.WithAttributes(attribute.String("type", msgType)))
}

// RecordRejectedJoin counts one refused join.
func (m *Metrics) RecordRejectedJoin(ctx context.Context, reason string) {
	m.JoinsRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
