package swc

import "errors"

var (
	// ErrNotInitialized is returned when an operation is called on a nil,
	// zero or closed Bridge.
	ErrNotInitialized = errors.New("swc: plugin not initialized")
	// ErrUnknownOperation is returned when the plugin does not export a
	// required operation.
	ErrUnknownOperation = errors.New("swc: unknown operation")
	// ErrNoResponse is returned when the plugin answers with no bytes.
	ErrNoResponse = errors.New("swc: plugin returned no response")
	// ErrDecode is returned when the plugin's response is not valid JSON for
	// the expected type.
	ErrDecode = errors.New("swc: cannot decode plugin response")
)
