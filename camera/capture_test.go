package camera

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/visionkit/gencam/camera/engine"
	"github.com/visionkit/gencam/camera/engine/sim"
	"github.com/visionkit/gencam/pkg"
)

// startCapture allocates a pool and starts capture with a no-op
// callback, failing the test on error.
func startCapture(t *testing.T, cam *Camera, frames uint32) {
	t.Helper()
	if err := cam.AllocateFrames(frames); err != nil {
		t.Fatalf("AllocateFrames failed: %v", err)
	}
	if err := cam.StartCapture(func(*Camera, *Frame, any) {}, nil); err != nil {
		t.Fatalf("StartCapture failed: %v", err)
	}
}

// =============================================================================
// Start Tests
// =============================================================================

func TestCamera_StartCapture(t *testing.T) {
	_, cam, simCam := newTestCamera(t, sim.Config{Width: 16, Height: 16})
	startCapture(t, cam, 3)

	if !cam.Streaming() {
		t.Error("Streaming() = false after StartCapture")
	}
	if !cam.Acquiring() {
		t.Error("Acquiring() = false after StartCapture")
	}
	if got := cam.State(); got != StateAcquiring {
		t.Errorf("State() = %v, want %v", got, StateAcquiring)
	}
	if got := simCam.AnnouncedCount(); got != 3 {
		t.Errorf("announced buffers = %d, want 3", got)
	}
	if got := simCam.QueuedCount(); got != 3 {
		t.Errorf("queued buffers = %d, want 3", got)
	}
	if got := simCam.CommandRuns(engine.CommandAcquisitionStart); got != 1 {
		t.Errorf("acquisition starts = %d, want 1", got)
	}
}

func TestCamera_StartCapture_NilCallback(t *testing.T) {
	_, cam, _ := newTestCamera(t, sim.Config{Width: 16, Height: 16})
	if err := cam.AllocateFrames(2); err != nil {
		t.Fatalf("AllocateFrames failed: %v", err)
	}
	if err := cam.StartCapture(nil, nil); !errors.Is(err, pkg.ErrBadParameter) {
		t.Errorf("StartCapture(nil) = %v, want ErrBadParameter", err)
	}
}

func TestCamera_StartCapture_NoPool(t *testing.T) {
	_, cam, _ := newTestCamera(t, sim.Config{Width: 16, Height: 16})
	err := cam.StartCapture(func(*Camera, *Frame, any) {}, nil)
	if !errors.Is(err, pkg.ErrNoFrameBuffer) {
		t.Errorf("StartCapture without pool = %v, want ErrNoFrameBuffer", err)
	}
	// The missing pool is a resource exhaustion condition.
	if !errors.Is(err, pkg.ErrResourceExhausted) {
		t.Errorf("StartCapture without pool = %v, want ErrResourceExhausted", err)
	}
}

func TestCamera_StartCapture_AlreadyRunning(t *testing.T) {
	_, cam, _ := newTestCamera(t, sim.Config{Width: 16, Height: 16})
	startCapture(t, cam, 2)

	err := cam.StartCapture(func(*Camera, *Frame, any) {}, nil)
	if !errors.Is(err, pkg.ErrBusy) {
		t.Errorf("second StartCapture = %v, want ErrBusy", err)
	}
}

// =============================================================================
// Start Failure Unwind Tests
// =============================================================================

func TestCamera_StartCapture_AnnounceFailureUnwinds(t *testing.T) {
	// The third announce fails. Nothing stays announced and
	// the handle remains usable for a retry.
	_, cam, simCam := newTestCamera(t, sim.Config{Width: 16, Height: 16})
	if err := cam.AllocateFrames(4); err != nil {
		t.Fatalf("AllocateFrames failed: %v", err)
	}
	simCam.AnnounceErrAt = 2

	err := cam.StartCapture(func(*Camera, *Frame, any) {}, nil)
	if err == nil {
		t.Fatal("StartCapture succeeded despite announce failure")
	}
	if cam.Streaming() || cam.Acquiring() {
		t.Error("capture flags set after failed start")
	}
	if got := simCam.AnnouncedCount(); got != 0 {
		t.Errorf("announced buffers = %d after unwind, want 0", got)
	}

	// Retry succeeds once the fault clears.
	simCam.AnnounceErrAt = -1
	if err := cam.StartCapture(func(*Camera, *Frame, any) {}, nil); err != nil {
		t.Fatalf("retry StartCapture failed: %v", err)
	}
}

func TestCamera_StartCapture_QueueFailureUnwinds(t *testing.T) {
	_, cam, simCam := newTestCamera(t, sim.Config{Width: 16, Height: 16})
	if err := cam.AllocateFrames(3); err != nil {
		t.Fatalf("AllocateFrames failed: %v", err)
	}
	simCam.QueueErrAt = 1

	err := cam.StartCapture(func(*Camera, *Frame, any) {}, nil)
	if err == nil {
		t.Fatal("StartCapture succeeded despite queue failure")
	}
	if cam.Streaming() || cam.Acquiring() {
		t.Error("capture flags set after failed start")
	}
	if simCam.Capturing() {
		t.Error("engine capture loop left running after unwind")
	}
	if got := simCam.AnnouncedCount(); got != 0 {
		t.Errorf("announced buffers = %d after unwind, want 0", got)
	}
}

func TestCamera_StartCapture_AcquisitionStartFailureUnwinds(t *testing.T) {
	_, cam, simCam := newTestCamera(t, sim.Config{Width: 16, Height: 16})
	if err := cam.AllocateFrames(2); err != nil {
		t.Fatalf("AllocateFrames failed: %v", err)
	}
	simCam.CommandErrs[engine.CommandAcquisitionStart] = pkg.ErrDeviceFault

	err := cam.StartCapture(func(*Camera, *Frame, any) {}, nil)
	if !errors.Is(err, pkg.ErrDeviceFault) {
		t.Fatalf("StartCapture = %v, want ErrDeviceFault", err)
	}
	if cam.Streaming() || cam.Acquiring() {
		t.Error("capture flags set after failed start")
	}
	if simCam.Capturing() {
		t.Error("engine capture loop left running after unwind")
	}
	if got := simCam.QueuedCount(); got != 0 {
		t.Errorf("queued buffers = %d after unwind, want 0", got)
	}
}

// =============================================================================
// Stop Tests
// =============================================================================

func TestCamera_StopCapture(t *testing.T) {
	_, cam, simCam := newTestCamera(t, sim.Config{Width: 16, Height: 16})
	startCapture(t, cam, 3)

	if err := cam.StopCapture(); err != nil {
		t.Fatalf("StopCapture failed: %v", err)
	}
	if cam.Streaming() || cam.Acquiring() {
		t.Error("capture flags set after StopCapture")
	}
	if simCam.Capturing() {
		t.Error("engine capture loop still running")
	}
	if got := simCam.AnnouncedCount(); got != 0 {
		t.Errorf("announced buffers = %d after stop, want 0", got)
	}
	if got := simCam.CommandRuns(engine.CommandAcquisitionStop); got != 1 {
		t.Errorf("acquisition stops = %d, want 1", got)
	}
	// The pool survives a stop and can be captured again.
	if got := cam.FrameCount(); got != 3 {
		t.Errorf("FrameCount() = %d after stop, want 3", got)
	}
	if err := cam.StartCapture(func(*Camera, *Frame, any) {}, nil); err != nil {
		t.Fatalf("restart after stop failed: %v", err)
	}
}

func TestCamera_StopCapture_Idempotent(t *testing.T) {
	_, cam, simCam := newTestCamera(t, sim.Config{Width: 16, Height: 16})
	startCapture(t, cam, 2)

	if err := cam.StopCapture(); err != nil {
		t.Fatalf("first StopCapture failed: %v", err)
	}
	if err := cam.StopCapture(); err != nil {
		t.Fatalf("second StopCapture failed: %v", err)
	}
	// The second stop is a pure no-op: no extra engine calls.
	if got := simCam.CommandRuns(engine.CommandAcquisitionStop); got != 1 {
		t.Errorf("acquisition stops = %d after double stop, want 1", got)
	}
}

func TestCamera_StopCapture_NeverStarted(t *testing.T) {
	_, cam, _ := newTestCamera(t, sim.Config{Width: 16, Height: 16})
	if err := cam.StopCapture(); err != nil {
		t.Errorf("StopCapture on idle camera = %v, want nil", err)
	}
}

// =============================================================================
// Revoke Retry Tests
// =============================================================================

func TestCamera_StopCapture_RetriesBusyRevoke(t *testing.T) {
	_, cam, simCam := newTestCamera(t, sim.Config{Width: 16, Height: 16})
	startCapture(t, cam, 2)

	simCam.RevokeBusyCount = 3
	if err := cam.StopCapture(); err != nil {
		t.Fatalf("StopCapture with transient busy = %v, want nil", err)
	}
	if got := simCam.AnnouncedCount(); got != 0 {
		t.Errorf("announced buffers = %d, want 0", got)
	}
}

func TestCamera_StopCapture_RevokeDeadline(t *testing.T) {
	_, cam, simCam := newTestCamera(t, sim.Config{Width: 16, Height: 16})
	startCapture(t, cam, 2)

	cam.revokeTimeout = 2 * time.Millisecond
	simCam.RevokeBusyCount = 1 << 30

	err := cam.StopCapture()
	if !errors.Is(err, pkg.ErrDeviceFault) {
		t.Fatalf("StopCapture with stuck revoke = %v, want ErrDeviceFault", err)
	}
	// Flags clear even when teardown reported an error.
	if cam.Streaming() || cam.Acquiring() {
		t.Error("capture flags set after failed stop")
	}
}

// =============================================================================
// Delivery Tests
// =============================================================================

func TestCamera_Delivery(t *testing.T) {
	_, cam, simCam := newTestCamera(t, sim.Config{Width: 16, Height: 16})

	type seen struct {
		id   uint64
		data byte
		user any
	}
	var frames []seen
	marker := "user-data"

	if err := cam.AllocateFrames(3); err != nil {
		t.Fatalf("AllocateFrames failed: %v", err)
	}
	err := cam.StartCapture(func(c *Camera, f *Frame, userData any) {
		if c != cam {
			t.Error("callback received wrong camera")
		}
		if f.Status != engine.BufferComplete {
			t.Errorf("frame %d status = %v, want complete", f.ID, f.Status)
		}
		frames = append(frames, seen{id: f.ID, data: f.Data[0], user: userData})
	}, marker)
	if err != nil {
		t.Fatalf("StartCapture failed: %v", err)
	}

	// Steady state: every delivery requeues, so the queue never drains
	// across repeated delivery rounds.
	for round := 0; round < 10; round++ {
		if got := simCam.Deliver(1); got != 1 {
			t.Fatalf("round %d: delivered %d frames, want 1", round, got)
		}
	}
	if got := simCam.QueuedCount(); got != 3 {
		t.Errorf("queued buffers = %d after deliveries, want 3", got)
	}
	if len(frames) != 10 {
		t.Fatalf("callback ran %d times, want 10", len(frames))
	}
	for i, f := range frames {
		if f.id != uint64(i+1) {
			t.Errorf("frame %d id = %d, want %d", i, f.id, i+1)
		}
		if f.data != byte(i+1) {
			t.Errorf("frame %d payload marker = %d, want %d", i, f.data, i+1)
		}
		if f.user != marker {
			t.Errorf("frame %d user data = %v, want %q", i, f.user, marker)
		}
	}
}

func TestCamera_Delivery_RestoresBookkeeping(t *testing.T) {
	// A callback that scribbles over the buffer's context slots must not
	// break the requeue loop: the trampoline restores them before
	// requeueing.
	_, cam, simCam := newTestCamera(t, sim.Config{Width: 16, Height: 16})

	var calls atomic.Int32
	if err := cam.AllocateFrames(1); err != nil {
		t.Fatalf("AllocateFrames failed: %v", err)
	}
	err := cam.StartCapture(func(*Camera, *Frame, any) {
		calls.Add(1)
		for _, buf := range simCam.AnnouncedBuffers() {
			buf.Context[0] = nil
			buf.Context[1] = "garbage"
			buf.Context[2] = 42
		}
	}, nil)
	if err != nil {
		t.Fatalf("StartCapture failed: %v", err)
	}

	for round := 0; round < 6; round++ {
		if got := simCam.Deliver(1); got != 1 {
			t.Fatalf("round %d: delivered %d frames, want 1", round, got)
		}
	}
	if got := calls.Load(); got != 6 {
		t.Errorf("callback ran %d times, want 6", got)
	}
	for i, buf := range simCam.AnnouncedBuffers() {
		if owner, _ := buf.Context[0].(*Camera); owner != cam {
			t.Errorf("buffer %d owner slot not restored", i)
		}
		if _, ok := buf.Context[2].(FrameCallback); !ok {
			t.Errorf("buffer %d callback slot not restored", i)
		}
	}
}

// =============================================================================
// Capture vs Reallocation Tests
// =============================================================================

func TestCamera_AllocateFrames_StopsCapture(t *testing.T) {
	// Re-allocating while capturing quiesces the device first so the
	// engine never holds revoked memory.
	_, cam, simCam := newTestCamera(t, sim.Config{Width: 16, Height: 16})
	startCapture(t, cam, 2)

	if err := cam.AllocateFrames(4); err != nil {
		t.Fatalf("AllocateFrames while capturing failed: %v", err)
	}
	if cam.Streaming() || cam.Acquiring() {
		t.Error("capture flags set after reallocation")
	}
	if simCam.Capturing() {
		t.Error("engine capture loop still running after reallocation")
	}
	if got := cam.FrameCount(); got != 4 {
		t.Errorf("FrameCount() = %d, want 4", got)
	}
}

func TestCamera_GeometryChange_WhileCapturing(t *testing.T) {
	_, cam, _ := newTestCamera(t, sim.Config{Width: 32, Height: 32})
	startCapture(t, cam, 2)

	if err := cam.SetImageSize(16, 16); !errors.Is(err, pkg.ErrBusy) {
		t.Errorf("SetImageSize while capturing = %v, want ErrBusy", err)
	}
	if err := cam.SetBinningFactor(2); !errors.Is(err, pkg.ErrBusy) {
		t.Errorf("SetBinningFactor while capturing = %v, want ErrBusy", err)
	}
	if err := cam.SetPixelFormat("Mono12"); !errors.Is(err, pkg.ErrBusy) {
		t.Errorf("SetPixelFormat while capturing = %v, want ErrBusy", err)
	}
	if err := cam.SetSensorBitDepth("Bpp10"); !errors.Is(err, pkg.ErrBusy) {
		t.Errorf("SetSensorBitDepth while capturing = %v, want ErrBusy", err)
	}

	// Non-geometry features stay writable during capture.
	if err := cam.SetExposure(5000); err != nil {
		t.Errorf("SetExposure while capturing = %v, want nil", err)
	}
}
