package ratelimit

import (
	"errors"
	"net/http"
	"time"

	"user-service/middleware/ratelimit/application"
	"user-service/middleware/ratelimit/infra"
)

type ConcurrencyOptions struct {
	Max            int
	RejectStatus   int
	AcquireTimeout time.Duration
}

// ConcurrencyMiddleware caps in-flight requests at Max. Max <= 0 disables it.
func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Max <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}

	svc := application.ConcurrencyService{
		Pool:           infra.NewChanPool(opts.Max),
		AcquireTimeout: opts.AcquireTimeout,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, err := svc.Acquire(r.Context())
			if errors.Is(err, application.ErrNoSlot) {
				writeReject(w, opts.RejectStatus, http.StatusText(opts.RejectStatus))
				return
			}
			if err != nil {
				// client went away while queued
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
