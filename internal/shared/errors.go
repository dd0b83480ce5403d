package shared

import "fmt"

var (
	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Session and authorization errors
	ErrUnauthenticated = fmt.Errorf("not authenticated")
	ErrAuthExchange    = fmt.Errorf("authorization code exchange failed")

	// Request validation errors
	ErrBadRequest           = fmt.Errorf("invalid request")
	ErrUnsupportedMediaType = fmt.Errorf("unsupported media type")
	ErrPayloadTooLarge      = fmt.Errorf("payload too large")
	ErrTooManyRequests      = fmt.Errorf("too many requests")

	// Upstream provider errors
	ErrUpstream = fmt.Errorf("spotify request failed")

	// Persistence errors
	ErrTrackNotFound = fmt.Errorf("track not found")
)
