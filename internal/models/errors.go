// Package models contains the data structures used throughout the application.
package models

import (
	"errors"
	"maps"
)

// Common error types for domain-specific errors
var (
	// Provider errors
	ErrProviderAuth        = errors.New("provider credentials invalid or expired")
	ErrProviderUnavailable = errors.New("provider temporarily unavailable")
	ErrUnknownProvider     = errors.New("unknown provider")

	// Account errors
	ErrAccountNotFound  = errors.New("account not found")
	ErrAccountNotLinked = errors.New("no streaming account linked")

	// Track errors
	ErrTrackNotFound = errors.New("track not found")

	// Resolution errors
	ErrNoMatch        = errors.New("no acceptable audio match found")
	ErrDownloadFailed = errors.New("audio download failed")
	ErrUploadFailed   = errors.New("media upload failed")
)

// DomainError represents an error that occurs in the application domain.
type DomainError struct {
	// Original is the underlying error
	Original error

	// Message is a human-readable error message
	Message string

	// Domain is the area of the application where the error occurred
	Domain string

	// Details contains additional context for the error
	Details map[string]any
}

// Error returns the error message
func (e *DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Original.Error()
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Original
}

// NewDomainError creates a new DomainError
func NewDomainError(err error, message string, domain string) *DomainError {
	if message == "" && err != nil {
		message = err.Error()
	}

	return &DomainError{
		Original: err,
		Message:  message,
		Domain:   domain,
		Details:  make(map[string]any),
	}
}

// WithDetails adds details to the error
func (e *DomainError) WithDetails(details map[string]any) *DomainError {
	maps.Copy(e.Details, details)
	return e
}

// NewProviderError creates a provider-related domain error
func NewProviderError(err error, message string) *DomainError {
	return NewDomainError(err, message, "provider")
}

// NewResolutionError creates a resolution-related domain error
func NewResolutionError(err error, message string) *DomainError {
	return NewDomainError(err, message, "resolution")
}

// NewPlatformError creates a messaging-platform-related domain error
func NewPlatformError(err error, message string) *DomainError {
	return NewDomainError(err, message, "platform")
}

// NewInternalError creates an internal error
func NewInternalError(err error, message string) *DomainError {
	if message == "" {
		message = "An internal error occurred"
	}
	return NewDomainError(err, message, "system")
}
