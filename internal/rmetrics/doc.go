/*
Package rmetrics exposes Strata's Prometheus instrumentation.

Metrics are grouped by subsystem: item store (saves/deletes), index
maintainers (updates, uniqueness rejections), the online index builder
(batches, items processed), change-tracking sessions (save latency, pending
changes), schema migration, and the KV Store transaction layer. Handler
returns the promhttp handler for mounting on an operator's HTTP mux; Collector
periodically samples gauge-shaped state (index states, pending session
changes) that isn't naturally updated inline by the code paths that change it.
*/
package rmetrics
