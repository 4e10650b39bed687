package ratelimit

import (
	"encoding/json"
	"net/http"
	"strconv"
)

func formatInt(v int) string { return strconv.Itoa(v) }

// formatFloat avoids scientific notation for common rates.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

type errorBody struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

// writeReject answers with the same JSON error shape as the API handlers.
func writeReject(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: msg, Status: status})
}
