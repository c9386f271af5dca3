//go:build !linux && !darwin

// ABOUTME: Native engine stub for platforms without dynamic loading support
// ABOUTME: Keeps the provider compiling; Default falls back to the pure backend
package engine

import "errors"

// NewLibFLAC reports that the native backend is unavailable on this
// platform. Default then resolves to the pure-Go backend.
func NewLibFLAC() (Engine, error) {
	return nil, errors.New("native libFLAC backend not supported on this platform")
}
