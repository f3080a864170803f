package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrRateLimitExhausted is returned when every attempt was throttled.
	ErrRateLimitExhausted = errors.New("rate limit retries exhausted")

	// ErrContextCancelled is returned when the context is cancelled during a retry delay.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors other than 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents transport errors and timeouts.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassPayload represents a response body that could not be read.
	ErrorClassPayload ErrorClass = "payload"
)

// RequestError is a hard failure of a single request.
type RequestError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("search %s error (status %d): %s: %v",
			e.ErrorClass, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("search %s error (status %d): %s",
		e.ErrorClass, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *RequestError) Unwrap() error {
	return e.Err
}

// ClassOf returns the error class of err, or "" if it carries none.
func ClassOf(err error) ErrorClass {
	var reqErr *RequestError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRateLimitExhausted):
		return ErrorClassRateLimit
	case errors.As(err, &reqErr):
		return reqErr.ErrorClass
	default:
		return ""
	}
}

// classifyStatus maps a non-2xx status code to an error class.
func classifyStatus(statusCode int) ErrorClass {
	switch {
	case statusCode == 429:
		return ErrorClassRateLimit
	case statusCode >= 400 && statusCode < 500:
		return ErrorClassClient
	case statusCode >= 500:
		return ErrorClassServer
	default:
		return ErrorClassClient
	}
}
