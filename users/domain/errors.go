package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so the transport can map it to a status code.
type Kind uint8

const (
	KindInternal Kind = iota
	KindNotFound
	KindInvalid
	KindSerialization
	KindStore
	KindCache
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalid:
		return "invalid"
	case KindSerialization:
		return "serialization"
	case KindStore:
		return "store"
	case KindCache:
		return "cache"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

var (
	ErrNotFound    = errors.New("user not found")
	ErrRateLimited = errors.New("rate limited")
)

// Error carries a Kind and the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// E builds an *Error. A nil err yields nil.
func E(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	}
	return KindInternal
}
