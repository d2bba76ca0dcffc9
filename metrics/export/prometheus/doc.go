// Package prometheus exposes client counters and latency histograms as a
// prometheus.Collector.
//
// Counters are named evauth_*_total; the two histograms are
// evauth_exchange_latency_seconds and evauth_dispatch_latency_seconds.
//
// # What this package must NOT do
//
//   - Register with the global Prometheus registry. Callers register the
//     Exporter themselves or mount Handler.
//   - Mutate client state.
package prometheus
