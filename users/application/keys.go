package application

import (
	"strconv"

	"github.com/google/uuid"
)

// Endpoint names used for per-endpoint request counters.
const (
	EndpointGetUser    = "get_user"
	EndpointCreateUser = "create_user"
	EndpointListUsers  = "list_users"
	EndpointStats      = "get_stats"
)

// UserKey is the cache key of a point lookup.
func UserKey(id uuid.UUID) string {
	return "user:" + id.String()
}

// ListKey is the cache key of one listing page.
func ListKey(limit, offset int) string {
	return "users:limit:" + strconv.Itoa(limit) + ":offset:" + strconv.Itoa(offset)
}
