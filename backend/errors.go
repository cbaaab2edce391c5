// Copyright 2026 The CollabCanvas Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"errors"
	"fmt"
)

// Error represents a structured error response from the backend.
// Callers can use errors.As to extract the structured information:
//
//	var backendErr *backend.Error
//	if errors.As(err, &backendErr) {
//	    if backendErr.Code == backend.ErrCodeNotFound { ... }
//	}
type Error struct {
	// Code is the stable error code (e.g., "CC_NOT_FOUND").
	Code string `json:"errcode"`
	// Message is the human-readable error description from the server.
	Message string `json:"error"`
	// StatusCode is the HTTP status code of the response.
	StatusCode int `json:"-"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("backend: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// Standard backend error codes.
const (
	ErrCodeNotFound       = "CC_NOT_FOUND"
	ErrCodeWrongWorkspace = "CC_WRONG_WORKSPACE"
	ErrCodeBadJSON        = "CC_BAD_JSON"
	ErrCodeInvalidParam   = "CC_INVALID_PARAM"
	ErrCodeMissingParam   = "CC_MISSING_PARAM"
	ErrCodeConflict       = "CC_CONFLICT"
	ErrCodeUnavailable    = "CC_UNAVAILABLE"
	ErrCodeUnknown        = "CC_UNKNOWN"
)

// IsError checks whether err is a *Error with the given error code.
func IsError(err error, code string) bool {
	var backendErr *Error
	if errors.As(err, &backendErr) {
		return backendErr.Code == code
	}
	return false
}
