// Package internaldefs holds the exported metric names and bucket bounds
// shared by the Prometheus and OpenTelemetry exporters, so both publish the
// same series.
package internaldefs
