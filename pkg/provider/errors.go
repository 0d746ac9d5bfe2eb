package provider

import "errors"

// Failure taxonomy. Providers wrap these with context; callers match them
// with errors.Is.
var (
	ErrCredentialsMissing    = errors.New("no credentials configured")
	ErrCredentialsExpired    = errors.New("credentials expired")
	ErrAccessDenied          = errors.New("access denied")
	ErrTimeout               = errors.New("timeout connecting to Claude")
	ErrMalformedResponse     = errors.New("malformed response")
	ErrAutomationUnavailable = errors.New("browser automation unavailable")
	ErrUnexpectedStatus      = errors.New("API error")
)

// IsExpired reports whether err means the stored credentials must be renewed.
func IsExpired(err error) bool {
	return errors.Is(err, ErrCredentialsExpired)
}
