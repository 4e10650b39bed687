// Package application sequences the user operations around the cache and
// the store: cache lookup, store fallback, cache population on reads, and
// invalidation after writes, recording metrics on every branch.
package application
