package jira

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Sternrassler/jira-worklog/pkg/pagination"
)

// Common errors returned by the client.
var (
	// ErrTooManyResults is returned when a search reaches the pagination ceiling.
	ErrTooManyResults = pagination.ErrTooManyResults

	// ErrUnknownOperation is returned when calling an operation that was never registered.
	ErrUnknownOperation = errors.New("unknown operation")
)

// ErrorClass represents a classification of transport errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// classifyStatus maps an HTTP status to an error class.
func classifyStatus(status int) ErrorClass {
	switch {
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// TransportError is a failed remote call.
type TransportError struct {
	Operation  string
	Label      string
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Body       []byte
	Err        error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tracker %s error on %s (status %d): %s: %v",
			e.ErrorClass, e.Label, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("tracker %s error on %s (status %d): %s",
		e.ErrorClass, e.Label, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// ValidationError is returned before any remote call when a query parameter is malformed.
type ValidationError struct {
	Field string
	Value string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %q", e.Field, e.Value)
}

// DataShapeError reports a response that lacks the expected structure.
type DataShapeError struct {
	Operation string
	Key       string
	Reason    string
}

// Error implements the error interface.
func (e *DataShapeError) Error() string {
	return fmt.Sprintf("unexpected %s response for %s: %s", e.Operation, e.Key, e.Reason)
}

// TrackerError is an error payload returned by the tracker instead of data.
type TrackerError struct {
	Operation string
	Key       string
	Messages  []string
	Err       error
}

// Error implements the error interface.
func (e *TrackerError) Error() string {
	msg := strings.Join(e.Messages, "; ")
	if msg == "" {
		msg = "no error message"
	}
	return fmt.Sprintf("error retrieving %s %s: %s", e.Operation, e.Key, msg)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TrackerError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
