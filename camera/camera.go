package camera

import (
	"sync"
	"time"

	"github.com/visionkit/gencam/camera/engine"
	"github.com/visionkit/gencam/pkg"
)

// Camera is an open camera session. It owns the frame pool and the
// capture state of the session exclusively.
//
// A single internal mutex serializes all control operations, so
// StartCapture, StopCapture, reallocation, and feature access may be
// called from any goroutine. Frame delivery callbacks run on the
// engine's delivery thread and do not take the control mutex.
type Camera struct {
	rt  *Runtime
	dev engine.Device

	mu        sync.Mutex
	closed    bool
	announced bool
	streaming bool
	acquiring bool
	pool      framePool

	revokeTimeout time.Duration

	stats deliveryStats
}

// checkOpenLocked gates every operation on runtime initialization and
// handle liveness. Callers hold c.mu.
func (c *Camera) checkOpenLocked() error {
	if !c.rt.initialized.Load() {
		return pkg.ErrNotInitialized
	}
	if c.closed {
		return pkg.ErrClosed
	}
	return nil
}

// ID returns the camera identifier of this session.
func (c *Camera) ID() string {
	return c.dev.ID()
}

// Info returns the camera description reported by the engine.
func (c *Camera) Info() (engine.CameraInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpenLocked(); err != nil {
		return engine.CameraInfo{}, err
	}
	return c.dev.Info()
}

// State returns the capture pipeline state of the handle.
func (c *Camera) State() CaptureState {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.closed:
		return StateClosed
	case c.acquiring:
		return StateAcquiring
	case c.streaming:
		return StateStreaming
	case c.announced:
		return StateAnnounced
	default:
		return StateOpen
	}
}

// Streaming reports whether the engine's capture loop is running.
func (c *Camera) Streaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streaming
}

// Acquiring reports whether the device is executing acquisition.
func (c *Camera) Acquiring() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acquiring
}

// Close stops capture, releases the frame pool, and closes the device
// session. Every teardown step is attempted; the first error is
// returned. The handle is poisoned regardless of errors and all later
// operations fail with [pkg.ErrClosed].
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpenLocked(); err != nil {
		return err
	}

	firstErr := c.stopCaptureLocked()
	c.releasePoolLocked(false)
	if err := c.dev.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	c.closed = true
	pkg.LogInfo(pkg.ComponentCamera, "camera closed", "id", c.dev.ID())
	return firstErr
}

// Reset stops capture, releases the frame pool, and issues the
// device's reset command. The handle is poisoned afterwards: a
// resetting device must be re-discovered and re-opened. The close of
// the underlying session is best-effort since the device is already
// rebooting.
func (c *Camera) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpenLocked(); err != nil {
		return err
	}

	firstErr := c.stopCaptureLocked()
	c.releasePoolLocked(false)
	if err := c.dev.RunCommand(engine.CommandDeviceReset); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := c.dev.Close(); err != nil {
		pkg.LogDebug(pkg.ComponentCamera, "close after reset", "id", c.dev.ID(), "error", err)
	}
	c.closed = true
	pkg.LogInfo(pkg.ComponentCamera, "camera reset", "id", c.dev.ID())
	return firstErr
}
