package camera

// CaptureState describes the acquisition pipeline position of a
// camera handle. States advance Open -> Announced -> Streaming ->
// Acquiring and retreat in exactly the reverse order.
type CaptureState uint8

// Capture states.
const (
	StateClosed    CaptureState = iota // Handle closed, unusable
	StateOpen                          // Device open, no buffers announced
	StateAnnounced                     // Frame pool announced to the engine
	StateStreaming                     // Engine capture loop running
	StateAcquiring                     // Device executing acquisition
)

// String returns a human-readable state name.
func (s CaptureState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateAnnounced:
		return "announced"
	case StateStreaming:
		return "streaming"
	case StateAcquiring:
		return "acquiring"
	default:
		return "unknown"
	}
}
