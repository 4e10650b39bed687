package api

import (
	"errors"
	"net/http"

	"user-service/users/domain"
)

// errorBody is shared with the admission middleware's rejections.
type errorBody struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

var errMalformedID = errors.New("malformed user id")

func statusFor(err error) (int, string) {
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		return http.StatusNotFound, "Resource not found"
	case domain.KindInvalid, domain.KindSerialization:
		return http.StatusBadRequest, "Invalid request format"
	case domain.KindRateLimited:
		return http.StatusTooManyRequests, "Too many requests"
	case domain.KindStore:
		return http.StatusInternalServerError, "Database error"
	case domain.KindCache:
		return http.StatusInternalServerError, "Cache error"
	default:
		return http.StatusInternalServerError, "Internal error"
	}
}
