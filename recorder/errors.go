package recorder

import "errors"

// Error kinds surfaced by the engine. Callers classify with errors.Is;
// the control surface maps them onto protocol statuses.
var (
	// ErrValidation marks malformed input, rejected before any browser
	// resource is allocated.
	ErrValidation = errors.New("invalid input")

	// ErrNotFound marks an operation referencing a session or action id
	// absent from the live registry.
	ErrNotFound = errors.New("not found")

	// ErrLaunch marks a browser engine that could not be started.
	ErrLaunch = errors.New("browser launch failed")

	// ErrNavigation marks a navigation that did not settle within the
	// configured bound. Partially-launched resources are already released
	// when this is returned.
	ErrNavigation = errors.New("navigation failed")
)
