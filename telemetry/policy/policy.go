// Package policy centralizes runtime-tunable telemetry knobs for the engine
// facade, swapped atomically so probes never take a lock on the hot path.
package policy

import "time"

// TelemetryPolicy is held behind an atomic pointer; callers get an immutable
// snapshot. All durations are expected to be positive; zero values fall back
// to the defaults in Default().
type TelemetryPolicy struct {
	Health  HealthPolicy
	Tracing TracingPolicy
	Events  EventBusPolicy
}

type HealthPolicy struct {
	ProbeTTL               time.Duration
	QueueMinSamples        int
	QueueDegradedRatio     float64
	QueueUnhealthyRatio    float64
	QueueDegradedBacklog   int
	QueueUnhealthyBacklog  int
}

type TracingPolicy struct {
	SamplePercent           float64
	ErrorBoostPercent       float64
	LatencyBoostThresholdMs int64
	LatencyBoostPercent     float64
}

type EventBusPolicy struct {
	MaxSubscriberBuffer int
}

// Default returns a TelemetryPolicy populated with the engine's built-in
// heuristics. Adjust carefully; source quarantine and alerting assume these
// semantics.
func Default() TelemetryPolicy {
	return TelemetryPolicy{
		Health: HealthPolicy{
			ProbeTTL:              2 * time.Second,
			QueueMinSamples:       10,
			QueueDegradedRatio:    0.50,
			QueueUnhealthyRatio:   0.80,
			QueueDegradedBacklog:  256,
			QueueUnhealthyBacklog: 512,
		},
		Tracing: TracingPolicy{SamplePercent: 20},
		Events:  EventBusPolicy{MaxSubscriberBuffer: 1024},
	}
}

// Normalize ensures sane bounds without mutating the original; returns a
// cleaned copy.
func (p TelemetryPolicy) Normalize() TelemetryPolicy {
	c := p
	if c.Health.ProbeTTL <= 0 {
		c.Health.ProbeTTL = 2 * time.Second
	}
	if c.Health.QueueMinSamples <= 0 {
		c.Health.QueueMinSamples = 10
	}
	if c.Health.QueueDegradedRatio <= 0 {
		c.Health.QueueDegradedRatio = 0.50
	}
	if c.Health.QueueUnhealthyRatio <= 0 {
		c.Health.QueueUnhealthyRatio = 0.80
	}
	if c.Health.QueueDegradedBacklog <= 0 {
		c.Health.QueueDegradedBacklog = 256
	}
	if c.Health.QueueUnhealthyBacklog <= 0 {
		c.Health.QueueUnhealthyBacklog = 512
	}
	if c.Tracing.SamplePercent < 0 {
		c.Tracing.SamplePercent = 0
	}
	if c.Tracing.SamplePercent > 100 {
		c.Tracing.SamplePercent = 100
	}
	if c.Events.MaxSubscriberBuffer <= 0 {
		c.Events.MaxSubscriberBuffer = 1024
	}
	return c
}
