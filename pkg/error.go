package pkg

import (
	"errors"
	"fmt"
)

// Capture engine and camera errors.
var (
	// ErrNotInitialized indicates the engine runtime has not been started.
	ErrNotInitialized = errors.New("engine not initialized")

	// ErrBadParameter indicates an invalid argument (zero-sized request,
	// nil required value).
	ErrBadParameter = errors.New("bad parameter")

	// ErrResourceExhausted indicates an allocation or resource failure.
	ErrResourceExhausted = errors.New("resources exhausted")

	// ErrBusy indicates the operation requires a quiesced device but the
	// device is streaming or acquiring.
	ErrBusy = errors.New("device busy")

	// ErrDeviceFault indicates the capture engine reported an internal
	// or IO fault.
	ErrDeviceFault = errors.New("device fault")

	// ErrUnsupported indicates a feature is not present on this device.
	ErrUnsupported = errors.New("feature not supported")

	// ErrTimeout indicates an engine operation timed out.
	ErrTimeout = errors.New("operation timed out")

	// ErrNotFound indicates no matching camera or feature exists.
	ErrNotFound = errors.New("not found")

	// ErrClosed indicates the camera handle has been closed.
	ErrClosed = errors.New("camera closed")

	// ErrNoFrameBuffer indicates capture was started without an
	// allocated frame pool. It is a resource exhaustion error.
	ErrNoFrameBuffer = fmt.Errorf("%w: no frame buffer allocated", ErrResourceExhausted)

	// ErrShutdown indicates the runtime has been shut down and cannot
	// be restarted.
	ErrShutdown = errors.New("runtime shut down")
)

// EngineStatus represents a coarse status code reported by a capture
// engine backend.
type EngineStatus int

// Engine status values.
const (
	StatusSuccess      EngineStatus = iota // Operation completed successfully
	StatusError                            // Internal engine fault
	StatusBusy                             // Engine busy, retry may succeed
	StatusResources                        // Resource exhaustion
	StatusBadParameter                     // Invalid argument
	StatusUnsupported                      // Feature not supported
	StatusTimeout                          // Operation timed out
	StatusNotFound                         // Entity not found
	StatusIncomplete                       // Operation not complete
)

// String returns a string representation of the engine status.
func (s EngineStatus) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	case StatusBusy:
		return "busy"
	case StatusResources:
		return "resources"
	case StatusBadParameter:
		return "bad parameter"
	case StatusUnsupported:
		return "unsupported"
	case StatusTimeout:
		return "timeout"
	case StatusNotFound:
		return "not found"
	case StatusIncomplete:
		return "incomplete"
	default:
		return "unknown"
	}
}

// Error returns the corresponding error for the engine status.
func (s EngineStatus) Error() error {
	switch s {
	case StatusSuccess:
		return nil
	case StatusBusy:
		return ErrBusy
	case StatusResources:
		return ErrResourceExhausted
	case StatusBadParameter:
		return ErrBadParameter
	case StatusUnsupported:
		return ErrUnsupported
	case StatusTimeout:
		return ErrTimeout
	case StatusNotFound:
		return ErrNotFound
	default:
		return ErrDeviceFault
	}
}
