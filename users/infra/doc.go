// Package infra holds the concrete adapters behind the domain contracts:
//
//   - SQLStore: database/sql store over pgx (Postgres) or go-sqlite3
//   - RedisCache: JSON cache on a pooled go-redis client
//   - MemoryCache: in-process cache with the same semantics, for local runs and tests
package infra
