// Package metrics aggregates the service counters on a private prometheus
// registry.
//
// An Aggregator is constructed once at startup and passed to every
// component that records into it. It never touches the prometheus default
// registry, so tests can build as many as they like.
package metrics
