// Package errors provides typed errors for paasta.
package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of error
type ErrorType int

const (
	// ErrConfig indicates a configuration error
	ErrConfig ErrorType = iota
	// ErrMarathon indicates a Marathon API error
	ErrMarathon
	// ErrMesos indicates a Mesos master or agent API error
	ErrMesos
	// ErrState indicates a coordination store error
	ErrState
	// ErrNoData indicates a metrics provider could not produce a utilization
	ErrNoData
	// ErrClusterAutoscaling indicates a cluster resource refused to scale
	ErrClusterAutoscaling
	// ErrLockHeld indicates another process holds the autoscaling lock
	ErrLockHeld
	// ErrAWS indicates an AWS API error
	ErrAWS
	// ErrRelease indicates the release procedure cannot proceed
	ErrRelease
	// ErrValidation indicates an input validation error
	ErrValidation
	// ErrTimeout indicates a timeout occurred
	ErrTimeout
)

// PaastaError is the base error type for all paasta errors
type PaastaError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error returns the error message
func (e *PaastaError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", errorTypeString(e.Type), e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", errorTypeString(e.Type), e.Message)
}

// Unwrap returns the underlying cause
func (e *PaastaError) Unwrap() error {
	return e.Cause
}

// New creates a new PaastaError
func New(errType ErrorType, message string, cause error) *PaastaError {
	return &PaastaError{
		Type:    errType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds context to the error
func (e *PaastaError) WithContext(key string, value interface{}) *PaastaError {
	e.Context[key] = value
	return e
}

// IsType checks if an error is of a specific type
func IsType(err error, errType ErrorType) bool {
	var pErr *PaastaError
	if err == nil {
		return false
	}
	if errors.As(err, &pErr) {
		return pErr.Type == errType
	}
	return false
}

// IsRetryable returns true if the error is transient and a later run may succeed
func IsRetryable(err error) bool {
	var pErr *PaastaError
	if !errors.As(err, &pErr) {
		return false
	}

	switch pErr.Type {
	case ErrMarathon, ErrMesos, ErrState, ErrTimeout, ErrLockHeld, ErrNoData:
		return true
	default:
		return false
	}
}

func errorTypeString(et ErrorType) string {
	switch et {
	case ErrConfig:
		return "CONFIG"
	case ErrMarathon:
		return "MARATHON"
	case ErrMesos:
		return "MESOS"
	case ErrState:
		return "STATE"
	case ErrNoData:
		return "NO_DATA"
	case ErrClusterAutoscaling:
		return "CLUSTER_AUTOSCALING"
	case ErrLockHeld:
		return "LOCK_HELD"
	case ErrAWS:
		return "AWS"
	case ErrRelease:
		return "RELEASE"
	case ErrValidation:
		return "VALIDATION"
	case ErrTimeout:
		return "TIMEOUT"
	default:
		return "UNKNOWN"
	}
}

// Convenience functions for common errors

// ConfigError creates a configuration error
func ConfigError(message string, cause error) *PaastaError {
	return New(ErrConfig, message, cause)
}

// MarathonError creates a Marathon API error
func MarathonError(message string, cause error) *PaastaError {
	return New(ErrMarathon, message, cause)
}

// MesosError creates a Mesos API error
func MesosError(message string, cause error) *PaastaError {
	return New(ErrMesos, message, cause)
}

// StateError creates a coordination store error
func StateError(message string, cause error) *PaastaError {
	return New(ErrState, message, cause)
}

// NoDataError creates a metrics provider no-data error
func NoDataError(message string) *PaastaError {
	return New(ErrNoData, message, nil)
}

// ClusterAutoscalingError creates a cluster autoscaling refusal
func ClusterAutoscalingError(message string) *PaastaError {
	return New(ErrClusterAutoscaling, message, nil)
}

// LockHeldError creates a lock contention error
func LockHeldError(message string, cause error) *PaastaError {
	return New(ErrLockHeld, message, cause)
}

// AWSError creates an AWS API error
func AWSError(message string, cause error) *PaastaError {
	return New(ErrAWS, message, cause)
}

// ReleaseError creates a release procedure error
func ReleaseError(message string, cause error) *PaastaError {
	return New(ErrRelease, message, cause)
}

// ValidationError creates a validation error
func ValidationError(message string, cause error) *PaastaError {
	return New(ErrValidation, message, cause)
}

// TimeoutError creates a timeout error
func TimeoutError(message string, cause error) *PaastaError {
	return New(ErrTimeout, message, cause)
}
