// Package sinks implements progress consumers: the cache status key,
// structured logs, Prometheus gauges, and Pub/Sub.
package sinks
