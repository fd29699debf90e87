// Package sim provides an in-memory capture engine for development
// and testing without camera hardware.
//
// The simulated engine implements [engine.Engine] and its cameras
// implement [engine.Device]. Frame delivery is driven explicitly by
// the test or example program:
//
//	eng := sim.New()
//	cam := eng.AddCamera(sim.Config{Alignment: 64})
//	// ... open and start capture through the camera package ...
//	cam.Deliver(10) // synchronously complete 10 queued buffers
//
// Deliveries run on the caller's goroutine and invoke the registered
// completion callbacks inline, which makes test assertions
// deterministic. Failure injection fields on [Camera] allow individual
// engine calls to fail at chosen points, mirroring how the transport
// layer misbehaves in the field.
package sim
