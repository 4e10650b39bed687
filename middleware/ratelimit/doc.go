// Package ratelimit provides the net/http admission middlewares: a per-client
// token bucket and an in-flight concurrency limit.
//
// Layers:
//
//   - domain: contracts and types, no net/http
//   - application: the allow/deny and acquire use cases
//   - infra: x/time/rate buckets, channel semaphore, Redis decision stats
//   - ratelimit (this package): middlewares, client key extraction and the
//     translation of decisions into status codes and headers
//
// Request flow:
//
//  1. Extract the client key (header, X-Forwarded-For, peer address)
//  2. Ask the application layer for a decision and record it
//  3. Rejected: answer 429 (rate) or 503 (concurrency) with a JSON body
//  4. Admitted: call the next handler
package ratelimit
