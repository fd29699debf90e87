package camera

import (
	"github.com/visionkit/gencam/camera/engine"
)

// Buffer context slot assignments. The slots travel inside the
// engine-level buffer struct; the trampoline restores them after every
// user callback so user code cannot break the requeue loop.
const (
	ctxOwner    = 0 // *Camera back-reference
	ctxData     = 1 // user-supplied opaque data
	ctxCallback = 2 // FrameCallback
)

// Frame is the user-visible view of one completed capture. It exposes
// the payload and completion metadata only; the pool's bookkeeping
// stays out of reach.
//
// The view is valid only for the duration of the callback invocation:
// the underlying buffer is requeued to the engine as soon as the
// callback returns, after which Data may be overwritten by the next
// DMA transfer. Callers needing the pixels afterwards must copy them.
type Frame struct {
	// Data is the payload of the completed frame.
	Data []byte

	// Status reports whether the frame arrived intact.
	Status engine.BufferStatus

	// ID is the engine's monotonic frame counter.
	ID uint64

	// Timestamp is the device timestamp in nanoseconds.
	Timestamp uint64

	// Width and Height give the delivered image geometry in pixels.
	Width  uint32
	Height uint32
}

// FrameCallback is invoked once per completed frame, from the engine's
// delivery thread. The frame view must not be retained past the
// callback's return.
type FrameCallback func(cam *Camera, frame *Frame, userData any)
