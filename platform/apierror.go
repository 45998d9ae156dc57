package platform

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/bluesky-social/indigo/xrpc"
)

// Write call completed, but the response did not include the created record's URI.
var ErrMissingResult = errors.New("platform response missing created record")

type APIError struct {
	StatusCode int
	Name       string
	Message    string
}

func (ae *APIError) Error() string {
	if ae.StatusCode > 0 {
		if ae.Name != "" && ae.Message != "" {
			return fmt.Sprintf("API request failed (HTTP %d): %s: %s", ae.StatusCode, ae.Name, ae.Message)
		} else if ae.Name != "" {
			return fmt.Sprintf("API request failed (HTTP %d): %s", ae.StatusCode, ae.Name)
		}
		return fmt.Sprintf("API request failed (HTTP %d)", ae.StatusCode)
	}
	return "API request failed"
}

// Converts an XRPC error response into an [APIError]. Transport failures and other errors are returned unchanged.
func apiError(err error) error {
	var xe *xrpc.Error
	if err == nil || !errors.As(err, &xe) {
		return err
	}
	ae := &APIError{StatusCode: xe.StatusCode}
	var body *xrpc.XRPCError
	if errors.As(xe.Wrapped, &body) {
		ae.Name = body.ErrStr
		ae.Message = body.Message
	}
	return ae
}

// Reports whether a failed call is worth trying again later: network errors, rate limiting, and server errors. Request and auth errors, and responses missing a result, are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrMissingResult) {
		return false
	}
	var ae *APIError
	if errors.As(err, &ae) {
		if ae.StatusCode == http.StatusTooManyRequests || ae.StatusCode >= 500 {
			return true
		}
		return false
	}
	return true
}
