// Package domain defines the admission-control contracts: limiters keyed by
// client identity, the decision they produce, decision statistics and the
// in-flight slot pool.
//
// Nothing here depends on net/http or on a concrete limiter, so the
// application layer can be unit tested with fakes.
package domain
