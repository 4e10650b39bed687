package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"user-service/users/domain"
)

type healthResponse struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Version   string                 `json:"version"`
	Checks    map[string]checkResult `json:"checks,omitempty"`
}

type checkResult struct {
	Status   string `json:"status"`
	Duration string `json:"duration"`
	Error    string `json:"error,omitempty"`
}

type healthHandler struct {
	checks  map[string]domain.Pinger
	version string
	timeout time.Duration
	now     func() time.Time
}

func (h *healthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	resp := healthResponse{
		Status:    "healthy",
		Timestamp: h.now().UTC().Format(time.RFC3339),
		Version:   h.version,
	}
	if len(h.checks) > 0 {
		resp.Checks = make(map[string]checkResult, len(h.checks))
	}

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		start := h.now()
		err := h.checks[name].Ping(ctx)
		res := checkResult{Status: "healthy", Duration: h.now().Sub(start).String()}
		if err != nil {
			res.Status = "unhealthy"
			res.Error = err.Error()
			resp.Status = "unhealthy"
		}
		resp.Checks[name] = res
	}

	status := http.StatusOK
	if resp.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
