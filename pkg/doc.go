// Package pkg provides shared utilities for the gencam camera stack.
//
// This package contains common functionality used across the camera
// library and its engine backends, including:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel error types for capture engine failures
//   - Component identifiers for log filtering
//
// The package is designed to have zero external dependencies, relying
// only on the Go standard library.
//
// # Logging
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentCamera, "camera opened", "id", id)
//
// # Errors
//
// Common capture errors are defined as sentinel values:
//
//	if errors.Is(err, pkg.ErrBusy) {
//	    // Stop capture before changing geometry
//	}
//
// Engine backends report coarse [EngineStatus] codes; Status.Error
// maps a code onto the sentinel taxonomy so errors.Is works across
// the public API.
package pkg
