// Package otel bridges goGuard engine metrics to an OpenTelemetry meter.
//
// [NewExporter] registers an Int64ObservableCounter per engine counter and an
// Int64ObservableGauge per histogram bucket. One callback snapshots
// [goGuard.Engine.MetricsSnapshot] per collection cycle. Callers own the
// MeterProvider.
package otel
