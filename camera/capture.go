package camera

import (
	"errors"
	"fmt"
	"time"

	"github.com/visionkit/gencam/camera/engine"
	"github.com/visionkit/gencam/pkg"
)

// Revoke retry policy. The engine may report busy while frames are in
// flight; revocation is retried only for busy conditions, and engine
// unresponsiveness past the deadline is treated as a device fault
// instead of spinning forever.
const (
	revokeRetryInterval  = 500 * time.Microsecond
	defaultRevokeTimeout = 5 * time.Second
)

// StartCapture arms the acquisition pipeline and begins continuous
// frame delivery to cb. The sequence is: announce every descriptor,
// start the engine's capture loop, write the bookkeeping slots, queue
// every descriptor, and issue the acquisition-start command. The
// handle transitions to acquiring only after every step has succeeded;
// a failure at any step unwinds through the full stop path first, so
// callers never observe a half-started capture or a partially
// announced pool.
//
// cb runs on the engine's delivery thread once per completed frame and
// is re-armed automatically; see [FrameCallback].
func (c *Camera) StartCapture(cb FrameCallback, userData any) error {
	if cb == nil {
		return fmt.Errorf("%w: nil callback", pkg.ErrBadParameter)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpenLocked(); err != nil {
		return err
	}
	if c.streaming || c.acquiring {
		return fmt.Errorf("%w: capture already started", pkg.ErrBusy)
	}
	if c.pool.empty() {
		return pkg.ErrNoFrameBuffer
	}

	for i, f := range c.pool.frames {
		if err := c.dev.Announce(f); err != nil {
			c.unwindLocked(false, false)
			return fmt.Errorf("announce frame %d: %w", i, err)
		}
	}
	c.announced = true

	if err := c.dev.CaptureStart(); err != nil {
		c.unwindLocked(false, false)
		return err
	}

	for _, f := range c.pool.frames {
		f.Context[ctxOwner] = c
		f.Context[ctxData] = userData
		f.Context[ctxCallback] = cb
	}

	for i, f := range c.pool.frames {
		if err := c.dev.Queue(f, c.trampoline); err != nil {
			c.unwindLocked(false, true)
			return fmt.Errorf("queue frame %d: %w", i, err)
		}
	}

	if err := c.dev.RunCommand(engine.CommandAcquisitionStart); err != nil {
		c.unwindLocked(false, true)
		return err
	}

	c.streaming = true
	c.acquiring = true
	c.resetStatsLocked()
	pkg.LogInfo(pkg.ComponentCapture, "capture started",
		"id", c.dev.ID(), "frames", len(c.pool.frames))
	return nil
}

// StopCapture tears the acquisition pipeline down in the one safe
// ordering: acquisition-stop, end the capture loop, flush the queue,
// revoke all buffers. It is a no-op when capture is not running.
// Every step is always attempted and the first error is returned;
// the streaming and acquiring flags are cleared unconditionally once
// the teardown sequence has run.
func (c *Camera) StopCapture() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpenLocked(); err != nil {
		return err
	}
	return c.stopCaptureLocked()
}

// stopCaptureLocked implements StopCapture for callers already holding
// the control mutex.
func (c *Camera) stopCaptureLocked() error {
	if !c.streaming && !c.acquiring && !c.announced {
		return nil
	}
	err := c.unwindLocked(c.acquiring, c.streaming)
	if err == nil {
		pkg.LogInfo(pkg.ComponentCapture, "capture stopped", "id", c.dev.ID())
	}
	return err
}

// unwindLocked runs the teardown sequence. The acquiring and streaming
// arguments say how far the pipeline actually got, independent of the
// public flags (which a failed StartCapture never sets). Order
// matters: acquisition stops before the capture loop ends, and the
// loop ends before buffers are revoked, because revoking memory the
// engine still considers in flight is unsafe.
func (c *Camera) unwindLocked(acquiring, streaming bool) error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if acquiring {
		record(c.dev.RunCommand(engine.CommandAcquisitionStop))
	}
	if streaming {
		record(c.dev.CaptureEnd())
	}
	record(c.dev.QueueFlush())
	record(c.revokeAllLocked())

	c.announced = false
	c.streaming = false
	c.acquiring = false
	return firstErr
}

// revokeAllLocked unregisters every announced buffer, retrying busy
// reports until the deadline. Non-busy failures surface immediately;
// hitting the deadline is reported as a device fault.
func (c *Camera) revokeAllLocked() error {
	deadline := time.Now().Add(c.revokeTimeout)
	for {
		err := c.dev.RevokeAll()
		if err == nil {
			return nil
		}
		if !errors.Is(err, pkg.ErrBusy) {
			return err
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: buffer revoke still busy after %s",
				pkg.ErrDeviceFault, c.revokeTimeout)
		}
		time.Sleep(revokeRetryInterval)
	}
}

// trampoline is the fixed completion callback registered with the
// engine for every queued buffer. It extracts the bookkeeping from the
// buffer's context slots, hands the frame to user code, then
// unconditionally rewrites the slots to their pre-call values and
// requeues the buffer, keeping steady-state capture a closed loop that
// needs no application-level re-arming.
func (c *Camera) trampoline(dev engine.Device, stream engine.Features, buf *engine.Buffer) {
	owner, _ := buf.Context[ctxOwner].(*Camera)
	userData := buf.Context[ctxData]
	cb, _ := buf.Context[ctxCallback].(FrameCallback)
	if owner == nil || cb == nil {
		pkg.LogError(pkg.ComponentCapture, "frame bookkeeping missing, dropping completion",
			"frame", buf.FrameID)
		return
	}

	frame := Frame{
		Data:      buf.Data,
		Status:    buf.Status,
		ID:        buf.FrameID,
		Timestamp: buf.Timestamp,
		Width:     buf.Width,
		Height:    buf.Height,
	}
	cb(owner, &frame, userData)

	// User code gets a mutable view of the same descriptor; restore
	// the slots so it cannot break the requeue loop.
	buf.Context[ctxOwner] = owner
	buf.Context[ctxData] = userData
	buf.Context[ctxCallback] = cb

	owner.recordDelivery()

	if err := dev.Queue(buf, owner.trampoline); err != nil {
		pkg.LogError(pkg.ComponentCapture, "frame requeue failed",
			"id", owner.dev.ID(), "frame", buf.FrameID, "error", err)
	}
}
