// Package application holds the admission use cases: the allow/deny
// decision with its retry hint, decision recording, and slot acquisition
// with a timeout.
//
// It depends only on domain and knows nothing about net/http.
package application
