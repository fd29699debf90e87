package engine

import (
	"context"
)

// AccessMode controls how a camera session is opened.
type AccessMode uint8

// Access mode constants.
const (
	AccessExclusive AccessMode = iota // Exclusive control (default)
	AccessReadOnly                    // Read features only, no capture
	AccessFull                        // Full access including shared control
)

// String returns a human-readable access mode name.
func (m AccessMode) String() string {
	switch m {
	case AccessExclusive:
		return "exclusive"
	case AccessReadOnly:
		return "read-only"
	case AccessFull:
		return "full"
	default:
		return "unknown"
	}
}

// TransportLayer identifies the physical transport behind a camera.
type TransportLayer uint8

// Transport layer types.
const (
	TransportUnknown    TransportLayer = iota
	TransportGigE                      // GigE Vision
	TransportUSB3                      // USB 3 Vision
	TransportUVC                       // USB video class
	TransportPCIe                      // PCI / PCIe
	TransportCXP                       // CoaXPress
	TransportCameraLink                // Camera Link
	TransportEthernet                  // Generic Ethernet
	TransportCustom                    // Vendor-specific
)

// String returns a human-readable transport layer name.
func (t TransportLayer) String() string {
	switch t {
	case TransportGigE:
		return "GigE Vision"
	case TransportUSB3:
		return "USB 3 Vision"
	case TransportUVC:
		return "USB video class"
	case TransportPCIe:
		return "PCI / PCIe"
	case TransportCXP:
		return "CoaXPress"
	case TransportCameraLink:
		return "Camera Link"
	case TransportEthernet:
		return "Generic Ethernet"
	case TransportCustom:
		return "Custom"
	default:
		return "Unknown"
	}
}

// CameraInfo describes a camera visible to the engine.
type CameraInfo struct {
	ID        string         // Unique camera identifier
	Name      string         // Display name
	Model     string         // Device model
	Serial    string         // Serial number
	Transport TransportLayer // Physical transport
}

// BufferStatus reports the completion state of a delivered buffer.
type BufferStatus uint8

// Buffer completion states.
const (
	BufferComplete   BufferStatus = iota // Frame received intact
	BufferIncomplete                     // Frame arrived truncated
	BufferTooSmall                       // Buffer smaller than the payload
	BufferInvalid                        // Buffer content unusable
)

// String returns a human-readable buffer status name.
func (s BufferStatus) String() string {
	switch s {
	case BufferComplete:
		return "complete"
	case BufferIncomplete:
		return "incomplete"
	case BufferTooSmall:
		return "too small"
	case BufferInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// NumContextSlots is the number of opaque context slots carried by a
// Buffer. The layout mirrors the vendor frame struct.
const NumContextSlots = 4

// Buffer is one frame buffer as exchanged with the capture engine.
// The embedding library allocates Data with the alignment the engine
// requires, announces the buffer, and queues it for capture; the
// engine DMAs image data into Data and fills the completion metadata
// before invoking the registered FrameDone.
type Buffer struct {
	// Data is the payload region. Its base address must satisfy the
	// engine's alignment requirement and its length the payload size.
	Data []byte

	// Completion metadata, written by the engine on frame delivery.
	Status    BufferStatus // Delivery status
	FrameID   uint64       // Monotonic frame counter
	Timestamp uint64       // Device timestamp (ns)
	Width     uint32       // Image width in pixels
	Height    uint32       // Image height in pixels

	// Context slots for the embedding library's bookkeeping. The
	// engine never reads or writes these.
	Context [NumContextSlots]any
}

// FrameDone is invoked by the engine when a queued buffer completes.
// The engine calls it from its own delivery thread; it never delivers
// two completions for the same buffer concurrently, but distinct
// buffers may complete concurrently.
type FrameDone func(dev Device, stream Features, buf *Buffer)

// Well-known feature commands.
const (
	CommandAcquisitionStart = "AcquisitionStart"
	CommandAcquisitionStop  = "AcquisitionStop"
	CommandAdjustPacketSize = "GVSPAdjustPacketSize"
	CommandDeviceReset      = "DeviceReset"
)

// Well-known stream features.
const (
	FeatureBufferAlignment = "StreamBufferAlignment"
)

// Features provides generic access to a module's feature registry.
// Both devices and their streams expose one.
type Features interface {
	// GetInt reads an integer feature.
	GetInt(name string) (int64, error)

	// SetInt writes an integer feature.
	SetInt(name string, value int64) error

	// GetFloat reads a float feature.
	GetFloat(name string) (float64, error)

	// SetFloat writes a float feature.
	SetFloat(name string, value float64) error

	// GetBool reads a boolean feature.
	GetBool(name string) (bool, error)

	// SetBool writes a boolean feature.
	SetBool(name string, value bool) error

	// GetEnum reads the current entry of an enumeration feature.
	GetEnum(name string) (string, error)

	// SetEnum selects an entry of an enumeration feature.
	SetEnum(name string, value string) error

	// EnumEntries returns all entries of an enumeration feature and,
	// per entry, whether it is currently available.
	EnumEntries(name string) (entries []string, available []bool, err error)

	// IntRange returns the minimum, maximum, and increment of an
	// integer feature.
	IntRange(name string) (min, max, step int64, err error)

	// FloatRange returns the minimum, maximum, and increment of a
	// float feature. A zero step means the feature is continuous.
	FloatRange(name string) (min, max, step float64, err error)

	// RunCommand executes a command feature.
	RunCommand(name string) error

	// CommandDone reports whether a previously run command finished.
	CommandDone(name string) (bool, error)
}

// Device is an open camera session on the capture engine.
//
// Buffer lifecycle calls (Announce, RevokeAll) register and unregister
// memory regions as valid DMA targets. Capture loop calls
// (CaptureStart, CaptureEnd, QueueFlush, Queue) control the engine's
// delivery machinery. The ordering constraints between them are owned
// by the embedding library, not the engine.
type Device interface {
	Features

	// ID returns the camera identifier this session was opened with.
	ID() string

	// Info returns the camera description.
	Info() (CameraInfo, error)

	// Stream returns the feature registry of the primary stream.
	Stream() Features

	// PayloadSize returns the byte size of one complete frame as
	// currently configured.
	PayloadSize() (uint32, error)

	// Announce registers a buffer with the engine as a DMA target.
	Announce(buf *Buffer) error

	// RevokeAll unregisters every announced buffer. The engine may
	// report a busy condition while buffers are in flight.
	RevokeAll() error

	// CaptureStart starts the engine's capture loop.
	CaptureStart() error

	// CaptureEnd stops the engine's capture loop.
	CaptureEnd() error

	// QueueFlush discards all queued buffers without delivering them.
	QueueFlush() error

	// Queue submits an announced buffer for the next capture. The
	// engine invokes done when the buffer completes.
	Queue(buf *Buffer, done FrameDone) error

	// Close ends the session. The device must not be used afterwards.
	Close() error
}

// Engine is the vendor-supplied capture runtime. It owns the physical
// transport, announces DMA regions, delivers completed frames, and
// runs device feature commands. Vendors implement this interface;
// the camera package never reimplements transport.
type Engine interface {
	// Init initializes the engine runtime.
	// The context can be used to cancel initialization.
	Init(ctx context.Context) error

	// Shutdown releases the engine runtime. After Shutdown returns,
	// the engine must not be used.
	Shutdown() error

	// Cameras lists the cameras currently visible to the engine.
	Cameras(ctx context.Context) ([]CameraInfo, error)

	// Open opens a camera session. An empty id selects the first
	// available camera.
	Open(ctx context.Context, id string, mode AccessMode) (Device, error)
}
