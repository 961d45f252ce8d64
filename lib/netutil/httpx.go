// Copyright 2026 The Huddle Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides the HTTP plumbing shared by Huddle's API
// clients: bounded response reads, a status error type for JSON APIs
// that have no structured error shape, a JSON request helper, and the
// HTTP client constructor every component uses.
package netutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// MaxResponseSize bounds JSON API response body reads at 32 MB. A
// directory listing or a page of room history is orders of magnitude
// smaller; the bound only stops a misbehaving server from exhausting
// memory.
const MaxResponseSize int64 = 32 << 20

// maxErrorBody bounds how much of an error body is kept in a
// StatusError for diagnostics.
const maxErrorBody = 512

// ReadResponse reads a JSON API response body up to MaxResponseSize bytes.
// Use instead of io.ReadAll when reading HTTP response bodies.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}

// DecodeResponse reads a JSON API response body (up to MaxResponseSize
// bytes) and JSON-decodes it into v.
func DecodeResponse(body io.Reader, v any) error {
	data, err := ReadResponse(body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	return json.Unmarshal(data, v)
}

// ErrorBody reads an HTTP error response body for diagnostics. Read
// errors are ignored; a partial body is still useful in a message.
func ErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, maxErrorBody))
	return strings.TrimSpace(string(data))
}

// StatusError is returned for a non-2xx response from a JSON API that
// has no structured error format of its own.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// Request describes one JSON API call made with DoJSON.
type Request struct {
	Method string
	URL    string

	// Bearer is sent as "Authorization: Bearer <Bearer>" when non-empty.
	Bearer string

	// Body is JSON-encoded when non-nil. Form, if set, takes precedence
	// and is sent as application/x-www-form-urlencoded.
	Body any
	Form string
}

// DoJSON performs request and decodes a 2xx JSON response into result
// (which may be nil). A non-2xx response returns a *StatusError.
func DoJSON(ctx context.Context, client *http.Client, request Request, result any) error {
	var bodyReader io.Reader
	contentType := ""
	switch {
	case request.Form != "":
		bodyReader = strings.NewReader(request.Form)
		contentType = "application/x-www-form-urlencoded"
	case request.Body != nil:
		encoded, err := json.Marshal(request.Body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
		contentType = "application/json"
	}

	httpRequest, err := http.NewRequestWithContext(ctx, request.Method, request.URL, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	httpRequest.Header.Set("Accept", "application/json")
	if contentType != "" {
		httpRequest.Header.Set("Content-Type", contentType)
	}
	if request.Bearer != "" {
		httpRequest.Header.Set("Authorization", "Bearer "+request.Bearer)
	}

	response, err := client.Do(httpRequest)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return &StatusError{
			Method:     request.Method,
			URL:        request.URL,
			StatusCode: response.StatusCode,
			Body:       ErrorBody(response.Body),
		}
	}

	if result == nil {
		return nil
	}
	if err := DecodeResponse(response.Body, result); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", request.Method, request.URL, err)
	}
	return nil
}
