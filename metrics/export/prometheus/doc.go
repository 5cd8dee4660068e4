// Package prometheus provides Prometheus collectors for medauth metrics.
//
// [NewPrometheusExporter] accepts an [medauth.Engine] and exposes an [http.Handler]
// that renders all medauth counters and histograms in Prometheus text exposition format.
// Counter names are prefixed medauth_*_total; the single histogram is
// medauth_validate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry — callers mount the Handler.
//   - Mutate engine state.
package prometheus
