// Package prometheus exports goGuard engine metrics through
// client_golang.
//
// [NewCollector] returns a prometheus.Collector that snapshots
// [goGuard.Engine.MetricsSnapshot] on each scrape. Counters are named
// goguard_*_total and the latency histograms goguard_*_latency_seconds.
// The collector is never registered globally; callers choose the registry.
package prometheus
