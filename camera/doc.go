// Package camera implements a machine-vision camera control and
// streaming stack.
//
// It is engine-agnostic and interacts with capture hardware via the
// [engine.Engine] and [engine.Device] interfaces defined in the
// github.com/visionkit/gencam/camera/engine package. The boundary
// exposes generic operations for discovery, feature access, buffer
// management, and frame delivery, allowing SDK vendors to provide
// concrete bindings without changing this package.
//
// # Architecture
//
// The stack is organized into a few layers:
//
//   - Runtime manages the engine lifecycle and camera discovery
//   - Camera represents one open session with its frame pool
//   - Config applies a declarative YAML setup to an open camera
//   - DeliveryStats tracks frame pacing during capture
//
// # Frame Pool
//
// Each camera owns a pool of frame descriptors backed by allocations
// aligned to the transport's requirement. The pool is sized either by
// an explicit frame count or by a byte budget, and it is rebuilt
// wholesale whenever a geometry feature changes the payload size. A
// pool is never resized in place.
//
// # Capture Loop
//
// StartCapture announces the pool, starts the engine's capture loop,
// queues every descriptor, and issues the acquisition-start command.
// Completed frames arrive on the engine's delivery thread through a
// fixed trampoline that hands a read-only view to user code and then
// requeues the buffer, so steady-state capture needs no re-arming.
// StopCapture unwinds in the reverse order and is idempotent.
//
// # Example
//
//	rt := camera.NewRuntime(eng)
//	if err := rt.Startup(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Shutdown()
//
//	cam, err := rt.Open(ctx, "", camera.WithFrameCount(3))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer cam.Close()
//
//	cam.StartCapture(func(cam *camera.Camera, f *camera.Frame, _ any) {
//	    process(f.Data)
//	}, nil)
package camera
