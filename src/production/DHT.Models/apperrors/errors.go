// Package apperrors defines the failure kinds a request can end in and how
// each one surfaces to clients.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure
type Kind int

const (
	KindUnknown Kind = iota
	KindConnection
	KindValidation
	KindPersistence
	KindRateLimit
	KindAuth
	KindMethod
)

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindValidation:
		return "validation"
	case KindPersistence:
		return "persistence"
	case KindRateLimit:
		return "rate_limit"
	case KindAuth:
		return "auth"
	case KindMethod:
		return "method"
	default:
		return "unknown"
	}
}

// StatusCode maps a kind onto its HTTP status
func (k Kind) StatusCode() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindAuth:
		return http.StatusUnauthorized
	case KindMethod:
		return http.StatusMethodNotAllowed
	default:
		return http.StatusInternalServerError
	}
}

// Stage records where a persistence operation failed
type Stage string

const (
	StagePrepare Stage = "prepare"
	StageExecute Stage = "execute"
	StageScan    Stage = "scan"
)

// Sentinel errors
var (
	ErrNoConnection    = errors.New("no active datastore connection")
	ErrUsernameTaken   = errors.New("username already exists")
	ErrInvalidLogin    = errors.New("invalid username or password")
	ErrTooManyRequests = errors.New("too many requests")
)

// Error is a classified failure. Message is safe to show to clients; Err
// carries the underlying cause for server-side logs only.
type Error struct {
	Kind    Kind
	Op      string
	Stage   Stage
	Message string
	Err     error
}

func (e *Error) Error() string {
	var msg string
	switch {
	case e.Op != "" && e.Stage != "":
		msg = fmt.Sprintf("%s (%s): %s", e.Op, e.Stage, e.Kind)
	case e.Op != "":
		msg = fmt.Sprintf("%s: %s", e.Op, e.Kind)
	default:
		msg = e.Kind.String()
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// StatusCode returns the HTTP status for the error's kind
func (e *Error) StatusCode() int { return e.Kind.StatusCode() }

// Public returns the client-facing message, never the underlying cause
func (e *Error) Public() string {
	if e.Message != "" {
		return e.Message
	}
	switch e.Kind {
	case KindConnection:
		return "Database connection failed."
	case KindRateLimit:
		return "Too many requests"
	case KindAuth:
		return "Invalid username or password"
	case KindMethod:
		return "Method not allowed. Only POST requests are accepted."
	case KindValidation:
		return "Invalid request"
	default:
		return "An unexpected server error occurred."
	}
}

// Validation builds a client error naming the offending input
func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// Connection wraps a failure to reach the datastore
func Connection(op string, err error) *Error {
	return &Error{Kind: KindConnection, Op: op, Err: err}
}

// Persistence wraps a statement failure at the given stage
func Persistence(op string, stage Stage, err error) *Error {
	return &Error{Kind: KindPersistence, Op: op, Stage: stage, Err: err}
}

// KindOf reports the kind of err, KindUnknown when it is not classified
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// StageOf reports the persistence stage of err, empty when unknown
func StageOf(err error) Stage {
	var e *Error
	if errors.As(err, &e) {
		return e.Stage
	}
	return ""
}

// Is reports whether err is classified with kind k
func Is(err error, k Kind) bool {
	return KindOf(err) == k
}
