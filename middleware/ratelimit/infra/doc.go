// Package infra implements the admission contracts:
//
//   - Store: one golang.org/x/time/rate token bucket per key, with idle eviction
//   - ChanPool: channel semaphore for in-flight limits
//   - RedisStatsStore: decision counters kept in Redis hashes
//   - MultiStats: fan-out to several stats stores
package infra
