// Package prometheus exposes goToken metrics as a client_golang Collector.
//
// [NewCollector] reads Engine.MetricsSnapshot on every scrape and emits const
// counters and histograms named by metrics/export/internaldefs. [Handler]
// serves a dedicated registry; register the collector elsewhere to merge it with
// process metrics.
package prometheus
