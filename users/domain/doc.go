// Package domain defines the user record, the error taxonomy and the
// contracts (Store, Cache) that the orchestrator consumes.
//
// It has no dependency on net/http, SQL or Redis so that the application
// layer can be tested against fakes.
package domain
