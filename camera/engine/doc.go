// Package engine defines the boundary to the external transport-layer
// capture engine.
//
// The engine is the vendor-provided runtime that owns the physical
// transport (GigE, USB3, CoaXPress, ...), DMAs image data into
// announced memory regions, and fires completion callbacks. Vendors
// implement the [Engine] and [Device] interfaces to make their runtime
// usable from the camera package; the camera package never implements
// transport itself.
//
// # Buffer ownership
//
// A [Buffer] is allocated and owned by the embedding library. The
// engine writes the payload and completion metadata, and must never
// touch the Context slots, which carry the library's bookkeeping.
//
// # Delivery model
//
// Completion callbacks run on the engine's own delivery thread(s).
// The engine never delivers two completions for the same buffer
// concurrently; completions for distinct buffers may overlap when the
// engine schedules multiple DMA channels.
//
// An in-memory engine for development and testing is available in
// [github.com/visionkit/gencam/camera/engine/sim].
package engine
