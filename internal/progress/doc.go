// Package progress publishes aggregate crawl counts so observers can follow a
// crawl without querying the queue store. Snapshots fan out to pluggable
// sinks: a well-known cache key, logs, Prometheus gauges, or Pub/Sub.
package progress
