/*
Package metrics defines and registers the Prometheus metrics exposed by
warrenflow: event store throughput, watcher activity, reconciliation
cycles, workflow run/node outcomes, log sink ingest and retention, auth
decisions, and HTTP request latency. Everything is registered once in
init() and scraped through Handler().

health.go provides a small health/readiness registry independent of
Prometheus, served on the metrics listener's /health, /ready, and /live
endpoints (the HTTP API answers its own /health separately).

collector.go polls point-in-time counts (event backlog by status) that
no single code path updates inline, through the narrow StatsSource
interface so this package never imports pkg/storage directly.
*/
package metrics
