// Package otel publishes goToken counters and latency histograms through an
// OpenTelemetry Meter.
//
// [NewOTelExporter] registers one Int64ObservableCounter per goToken counter and
// one Int64ObservableGauge per histogram whose "le" attribute carries the
// cumulative bucket bound. A single callback reads Engine.MetricsSnapshot on each
// collection. Callers own the MeterProvider.
package otel
