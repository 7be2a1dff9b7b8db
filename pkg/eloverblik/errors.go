package eloverblik

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument marks caller input rejected before any request is sent.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrRequest marks transport failures: the request never got a response.
	ErrRequest = errors.New("error making request")
	// ErrHTTPStatus is matched by every *HTTPError.
	ErrHTTPStatus = errors.New("unexpected http status")
	// ErrDataFormat is matched by every *DecodeError.
	ErrDataFormat = errors.New("unexpected response data")
)

// HTTPError is returned when the API answers with a non-2xx status,
// including a failed token exchange.
type HTTPError struct {
	Method     string
	Path       string
	StatusCode int
	Status     string
	Body       []byte
}

func (e *HTTPError) Error() string {
	if len(e.Body) > 0 {
		return fmt.Sprintf("%s %s: %s: %s", e.Method, e.Path, e.Status, truncate(string(e.Body), 256))
	}
	return fmt.Sprintf("%s %s: %s", e.Method, e.Path, e.Status)
}

func (e *HTTPError) Is(target error) bool {
	return target == ErrHTTPStatus
}

// DecodeError is returned when a response body does not have the shape
// the API documents. Decoding is all-or-nothing per document.
type DecodeError struct {
	Document string // e.g. "MyEnergyData_MarketDocument"
	Field    string // dotted path of the offending field, if known
	Err      error
}

func (e *DecodeError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("decode %s: field %s: %v", e.Document, e.Field, e.Err)
	}
	return fmt.Sprintf("decode %s: %v", e.Document, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func (e *DecodeError) Is(target error) bool {
	return target == ErrDataFormat
}

var errMissing = errors.New("missing required field")

func missingField(document, field string) *DecodeError {
	return &DecodeError{Document: document, Field: field, Err: errMissing}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
