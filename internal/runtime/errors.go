package runtime

import (
	"errors"
	"net"
	"net/http"

	"google.golang.org/api/googleapi"
)

// IsTransient reports whether a Gmail call failed in a way a later run
// can reasonably retry: rate limiting, server errors, or network
// timeouts.
func IsTransient(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500 {
			return true
		}
		// Gmail reports per-user rate limits as 403.
		if gerr.Code == http.StatusForbidden {
			for _, e := range gerr.Errors {
				if e.Reason == "rateLimitExceeded" || e.Reason == "userRateLimitExceeded" {
					return true
				}
			}
		}
		return false
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return nerr.Timeout()
	}
	return false
}

// IsNotFound reports whether the resource is gone, e.g. a message
// deleted between listing and fetching it.
func IsNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}

// IsAuthError reports a credential failure. Retrying without new
// credentials cannot help, so callers treat these as fatal. A 403 only
// counts when Gmail names the credentials as the problem; quota and
// per-message permission refusals stay per-item.
func IsAuthError(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	if gerr.Code == http.StatusUnauthorized {
		return true
	}
	if gerr.Code != http.StatusForbidden {
		return false
	}
	for _, e := range gerr.Errors {
		if e.Reason == "authError" || e.Reason == "accessNotConfigured" {
			return true
		}
	}
	return false
}
