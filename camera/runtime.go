package camera

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/visionkit/gencam/camera/engine"
	"github.com/visionkit/gencam/pkg"
)

// maxPacketSizePolls bounds the completion poll of the one-time
// packet-size tuning command run at device open.
const maxPacketSizePolls = 1000

// Runtime owns the process-wide lifecycle of a capture engine. Every
// camera operation requires a started runtime; calls against a
// never-started or shut-down runtime fail fast with
// [pkg.ErrNotInitialized].
//
// A Runtime wraps exactly one engine instance, so tests can construct
// independent runtimes instead of sharing hidden global state.
type Runtime struct {
	eng engine.Engine

	initialized atomic.Bool
	stopped     atomic.Bool

	startMu      sync.Mutex
	shutdownOnce sync.Once
}

// NewRuntime creates a runtime for the given engine. The engine is not
// initialized until Startup.
func NewRuntime(eng engine.Engine) *Runtime {
	return &Runtime{eng: eng}
}

// Startup initializes the engine. It is idempotent: concurrent and
// repeated calls initialize the engine at most once. A runtime that
// has been shut down cannot be restarted.
func (r *Runtime) Startup(ctx context.Context) error {
	r.startMu.Lock()
	defer r.startMu.Unlock()
	if r.stopped.Load() {
		return pkg.ErrShutdown
	}
	if r.initialized.Load() {
		return nil
	}
	if err := r.eng.Init(ctx); err != nil {
		return fmt.Errorf("%w: %s", pkg.ErrNotInitialized, err)
	}
	r.initialized.Store(true)
	pkg.LogInfo(pkg.ComponentRuntime, "engine started")
	return nil
}

// Shutdown releases the engine exactly once, no matter how many
// callers defer it. Operations after Shutdown fail with
// [pkg.ErrNotInitialized].
func (r *Runtime) Shutdown() error {
	var err error
	r.shutdownOnce.Do(func() {
		wasInit := r.initialized.Swap(false)
		r.stopped.Store(true)
		if wasInit {
			err = r.eng.Shutdown()
			pkg.LogInfo(pkg.ComponentRuntime, "engine shut down")
		}
	})
	return err
}

// Initialized reports whether the runtime has been started and not
// shut down.
func (r *Runtime) Initialized() bool {
	return r.initialized.Load()
}

// Cameras lists the cameras currently visible to the engine.
func (r *Runtime) Cameras(ctx context.Context) ([]engine.CameraInfo, error) {
	if !r.initialized.Load() {
		return nil, pkg.ErrNotInitialized
	}
	return r.eng.Cameras(ctx)
}

// openOptions collects Open settings.
type openOptions struct {
	mode        engine.AccessMode
	frameCount  uint32
	bufferBytes uint64
}

// Option configures a camera open operation.
type Option func(*openOptions)

// WithAccessMode selects the session access mode. The default is
// exclusive access.
func WithAccessMode(mode engine.AccessMode) Option {
	return func(o *openOptions) { o.mode = mode }
}

// WithFrameCount allocates a frame pool of the given size as part of
// the open operation.
func WithFrameCount(count uint32) Option {
	return func(o *openOptions) { o.frameCount = count }
}

// WithBufferBytes allocates a frame pool sized from a byte budget as
// part of the open operation; the frame count is derived from the
// device's payload size.
func WithBufferBytes(budget uint64) Option {
	return func(o *openOptions) { o.bufferBytes = budget }
}

// Open opens a camera session. An empty id selects the first camera
// the engine reports. When pool options are given and allocation
// fails, the device is closed again and the error returned; a camera
// handle is never returned half-initialized.
func (r *Runtime) Open(ctx context.Context, id string, opts ...Option) (*Camera, error) {
	if !r.initialized.Load() {
		return nil, pkg.ErrNotInitialized
	}
	var o openOptions
	for _, opt := range opts {
		opt(&o)
	}

	dev, err := r.eng.Open(ctx, id, o.mode)
	if err != nil {
		return nil, err
	}
	adjustPacketSize(dev)

	c := &Camera{
		rt:            r,
		dev:           dev,
		revokeTimeout: defaultRevokeTimeout,
	}
	pkg.LogInfo(pkg.ComponentCamera, "camera opened", "id", dev.ID())

	if o.frameCount > 0 {
		err = c.AllocateFrames(o.frameCount)
	} else if o.bufferBytes > 0 {
		err = c.AllocateBuffer(o.bufferBytes)
	}
	if err != nil {
		dev.Close()
		return nil, err
	}
	return c, nil
}

// adjustPacketSize runs the transport packet-size tuning command once
// against the device's stream, polling for completion with a bounded
// loop. This is an optional optimization: every failure is ignored.
func adjustPacketSize(dev engine.Device) {
	s := dev.Stream()
	if err := s.RunCommand(engine.CommandAdjustPacketSize); err != nil {
		return
	}
	for i := 0; i < maxPacketSizePolls; i++ {
		done, err := s.CommandDone(engine.CommandAdjustPacketSize)
		if err != nil || done {
			return
		}
	}
}
