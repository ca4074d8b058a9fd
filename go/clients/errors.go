package clients

import "errors"

// Error kinds returned by the API clients. Every failure wraps exactly one of these.
var (
	// ErrTransient covers timeouts, connectivity problems and unexpected status codes.
	ErrTransient = errors.New("transient network error")

	// ErrDecode is returned when a payload is malformed or has an unexpected shape.
	ErrDecode = errors.New("decode error")

	// ErrNotFound is returned when the auction no longer exists server-side.
	ErrNotFound = errors.New("not found")
)

// Kind returns a short label for err suitable for a log field.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrDecode):
		return "decode"
	case errors.Is(err, ErrTransient):
		return "transient"
	default:
		return "unknown"
	}
}
