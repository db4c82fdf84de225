package resource

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failed call.
type Kind int

const (
	// KindNetwork: the request did not complete (timeout, refused, reset).
	KindNetwork Kind = iota + 1
	// KindRequest: the server rejected the request (4xx other than 404/422).
	KindRequest
	// KindValidation: the payload failed field validation (422).
	KindValidation
	// KindNotFound: the record does not exist (404).
	KindNotFound
	// KindServer: 5xx, or a 2xx body that could not be decoded.
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindRequest:
		return "request"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

// Error is returned by every Service call that does not succeed.
type Error struct {
	Kind      Kind
	Op        string // e.g. "list brands"
	Status    int    // 0 for network errors
	Code      string // api.ErrorResponse.Code
	Message   string // human-readable
	Fields    map[string]string
	RequestID string
	Err       error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == KindNetwork:
		return fmt.Sprintf("%s: request failed: %v", e.Op, e.Err)
	case len(e.Fields) > 0:
		return fmt.Sprintf("%s: %s (%d fields)", e.Op, e.Message, len(e.Fields))
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func IsNetwork(err error) bool    { return KindOf(err) == KindNetwork }
func IsValidation(err error) bool { return KindOf(err) == KindValidation }
func IsNotFound(err error) bool   { return KindOf(err) == KindNotFound }
func IsServer(err error) bool     { return KindOf(err) == KindServer }
func IsRequest(err error) bool    { return KindOf(err) == KindRequest }

// FieldErrors returns the per-field messages of a validation failure.
func FieldErrors(err error) map[string]string {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusUnprocessableEntity:
		return KindValidation
	case status >= 500:
		return KindServer
	default:
		return KindRequest
	}
}
