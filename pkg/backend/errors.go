// Copyright (C) 2025 Zhixueban Project (dev@zhixueban.cn)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package backend is the HTTP client for the Zhixueban backend API.
//
// This file defines the typed error for non-2xx responses. Persistence
// recovery decisions (retry-later on 404, shrink-and-retry on 413) key
// off the status code, so it must survive error wrapping.
package backend

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Body is the response body, truncated for logging.
	Body string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Body)
}

// IsStatus reports whether err wraps a StatusError with the given
// status code.
func IsStatus(err error, code int) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == code
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	return IsStatus(err, http.StatusNotFound)
}

// IsPayloadTooLarge reports whether err is a 413 response.
func IsPayloadTooLarge(err error) bool {
	return IsStatus(err, http.StatusRequestEntityTooLarge)
}
