package infra

import (
	"encoding/json"
	"errors"
	"strings"

	"user-service/users/domain"
)

// MaxKeyLength bounds cache keys.
const MaxKeyLength = 512

var ErrInvalidKey = errors.New("cache: key is invalid")

func validateKey(op, key string) error {
	if strings.TrimSpace(key) == "" || len(key) > MaxKeyLength || strings.ContainsAny(key, "\n\r") {
		return domain.E(domain.KindInternal, op, ErrInvalidKey)
	}
	return nil
}

func encode(op string, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, domain.E(domain.KindSerialization, op, err)
	}
	return data, nil
}

func decode(op string, data []byte, dst any) error {
	if err := json.Unmarshal(data, dst); err != nil {
		return domain.E(domain.KindSerialization, op, err)
	}
	return nil
}
