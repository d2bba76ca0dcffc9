// Package otel publishes client counters through OpenTelemetry observable
// instruments.
//
// [NewExporter] registers one Int64ObservableCounter per counter and one
// Int64ObservableGauge per histogram bucket. A single callback reads
// [authclient.Client.MetricsSnapshot] on each collection.
//
// Callers supply the Meter; the package never owns a MeterProvider.
package otel
