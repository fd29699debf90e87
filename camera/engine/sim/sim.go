package sim

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/visionkit/gencam/camera/engine"
	"github.com/visionkit/gencam/pkg"
)

// Default simulated sensor geometry.
const (
	DefaultAlignment   = 1
	DefaultWidth       = 1936
	DefaultHeight      = 1216
	DefaultPixelFormat = "Mono8"
)

// frameInterval is the simulated inter-frame device time in ns (30 fps).
const frameInterval = 33_333_333

// bytesPerPixel maps the simulated pixel formats to their storage size.
var bytesPerPixel = map[string]uint32{
	"Mono8":  1,
	"Mono12": 2,
	"Mono16": 2,
	"RGB8":   3,
}

// Config describes one simulated camera.
type Config struct {
	ID        string // Camera identifier; a UUID is generated when empty
	Name      string
	Model     string
	Serial    string
	Transport engine.TransportLayer

	// Alignment is the buffer alignment the simulated stream reports.
	// Values < 1 are reported as-is so the resolver's defensive clamp
	// can be exercised.
	Alignment int64

	// Sensor geometry. Zero values fall back to the defaults above.
	Width  uint32
	Height uint32

	// PixelFormat selects the initial pixel format.
	PixelFormat string
}

// Engine is an in-memory capture engine for development and testing.
// It implements [engine.Engine] without hardware: buffers are
// "delivered" on demand via [Camera.Deliver], synchronously, on the
// caller's goroutine.
type Engine struct {
	mu          sync.Mutex
	initialized bool
	shutdown    bool
	cams        []*Camera

	// Failure injection.
	InitErr error // Returned by Init
}

// New creates a new simulated engine with no cameras attached.
func New() *Engine {
	return &Engine{}
}

// AddCamera attaches a simulated camera and returns it. Cameras may be
// added before or after Init.
func (e *Engine) AddCamera(cfg Config) *Camera {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.Width == 0 {
		cfg.Width = DefaultWidth
	}
	if cfg.Height == 0 {
		cfg.Height = DefaultHeight
	}
	if cfg.Alignment == 0 {
		cfg.Alignment = DefaultAlignment
	}
	if cfg.PixelFormat == "" {
		cfg.PixelFormat = DefaultPixelFormat
	}
	cam := newCamera(cfg)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.cams = append(e.cams, cam)
	pkg.LogDebug(pkg.ComponentSim, "camera attached", "id", cfg.ID)
	return cam
}

// Init initializes the simulated engine.
func (e *Engine) Init(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.InitErr != nil {
		return e.InitErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	e.initialized = true
	e.shutdown = false
	return nil
}

// Shutdown releases the simulated engine.
func (e *Engine) Shutdown() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.initialized = false
	e.shutdown = true
	return nil
}

// Cameras lists the attached simulated cameras.
func (e *Engine) Cameras(ctx context.Context) ([]engine.CameraInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return nil, pkg.ErrNotInitialized
	}
	infos := make([]engine.CameraInfo, 0, len(e.cams))
	for _, cam := range e.cams {
		infos = append(infos, cam.info)
	}
	return infos, nil
}

// Open opens a session on an attached camera. An empty id selects the
// first attached camera.
func (e *Engine) Open(ctx context.Context, id string, mode engine.AccessMode) (engine.Device, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return nil, pkg.ErrNotInitialized
	}
	for _, cam := range e.cams {
		if id == "" || cam.info.ID == id {
			cam.mu.Lock()
			cam.open = true
			cam.mode = mode
			cam.mu.Unlock()
			return cam, nil
		}
	}
	return nil, fmt.Errorf("%w: camera %q", pkg.StatusNotFound.Error(), id)
}

// queued is one buffer awaiting simulated delivery.
type queued struct {
	buf  *engine.Buffer
	done engine.FrameDone
}

// Camera is a simulated device session. It implements [engine.Device]
// and additionally exposes delivery control and failure injection for
// tests. Failure paths report coarse engine status codes translated
// through [pkg.EngineStatus.Error], the way a transport layer surfaces
// vendor status words.
type Camera struct {
	info      engine.CameraInfo
	alignment int64

	mu        sync.Mutex
	open      bool
	mode      engine.AccessMode
	capturing bool
	announced []*engine.Buffer
	queue     []queued

	nextFrameID uint64
	deviceTime  uint64

	intFeatures   map[string]int64
	floatFeatures map[string]float64
	boolFeatures  map[string]bool
	enumFeatures  map[string]string
	enumEntries   map[string][]string
	intRanges     map[string][3]int64
	floatRanges   map[string][3]float64
	commandRuns   map[string]int

	// Failure injection. All fields are safe to set before the
	// operation under test runs.
	AnnounceErr     error // Returned by Announce at index AnnounceErrAt
	AnnounceErrAt   int
	QueueErr        error // Returned by Queue at index QueueErrAt
	QueueErrAt      int
	CaptureStartErr error
	CaptureEndErr   error
	QueueFlushErr   error
	RevokeBusyCount int // RevokeAll reports busy this many times
	CommandErrs     map[string]error
	FeatureErrs     map[string]error
	CommandPending  map[string]int // CommandDone reports false this many times
}

func newCamera(cfg Config) *Camera {
	c := &Camera{
		info: engine.CameraInfo{
			ID:        cfg.ID,
			Name:      cfg.Name,
			Model:     cfg.Model,
			Serial:    cfg.Serial,
			Transport: cfg.Transport,
		},
		alignment:      cfg.Alignment,
		AnnounceErrAt:  -1,
		QueueErrAt:     -1,
		CommandErrs:    make(map[string]error),
		FeatureErrs:    make(map[string]error),
		CommandPending: make(map[string]int),
		commandRuns:    make(map[string]int),
		intFeatures: map[string]int64{
			"Width":                     int64(cfg.Width),
			"Height":                    int64(cfg.Height),
			"OffsetX":                   0,
			"OffsetY":                   0,
			"SensorWidth":               int64(cfg.Width),
			"SensorHeight":              int64(cfg.Height),
			"BinningHorizontal":         1,
			"BinningVertical":           1,
			"DeviceIndicatorLuminance":  10,
			"DeviceLinkThroughputLimit": 450_000_000,
			"DeviceLinkSpeed":           500_000_000,
		},
		floatFeatures: map[string]float64{
			"ExposureTime":         10000.0,
			"Gain":                 1.0,
			"AcquisitionFrameRate": 30.0,
			"DeviceTemperature":    42.5,
			"LineDebounceDuration": 1.0,
		},
		boolFeatures: map[string]bool{
			"ReverseX":                   false,
			"ReverseY":                   false,
			"AcquisitionFrameRateEnable": false,
			"LineInverter":               false,
		},
		enumFeatures: map[string]string{
			"PixelFormat":               cfg.PixelFormat,
			"SensorBitDepth":            "Bpp8",
			"BinningHorizontalMode":     "Sum",
			"BinningVerticalMode":       "Sum",
			"DeviceTemperatureSelector": "Mainboard",
			"DeviceIndicatorMode":       "Active",
			"LineSelector":              "Line0",
			"LineMode":                  "Input",
			"LineSource":                "Off",
			"LineDebounceMode":          "Off",
		},
		enumEntries: map[string][]string{
			"PixelFormat":               {"Mono8", "Mono12", "Mono16", "RGB8"},
			"SensorBitDepth":            {"Bpp8", "Bpp10", "Bpp12"},
			"BinningHorizontalMode":     {"Sum", "Average"},
			"BinningVerticalMode":       {"Sum", "Average"},
			"DeviceTemperatureSelector": {"Mainboard", "Sensor"},
			"DeviceIndicatorMode":       {"Off", "Active", "Inactive"},
			"LineSelector":              {"Line0", "Line1", "Line2", "Line3"},
			"LineMode":                  {"Input", "Output"},
			"LineSource":                {"Off", "ExposureActive", "FrameTriggerWait"},
			"LineDebounceMode":          {"Off", "Input"},
		},
		intRanges: map[string][3]int64{
			"Width":                     {8, int64(cfg.Width), 8},
			"Height":                    {8, int64(cfg.Height), 8},
			"BinningHorizontal":         {1, 8, 1},
			"BinningVertical":           {1, 8, 1},
			"DeviceIndicatorLuminance":  {0, 255, 1},
			"DeviceLinkThroughputLimit": {1_000_000, 500_000_000, 1},
		},
		floatRanges: map[string][3]float64{
			"ExposureTime":         {10.0, 1e7, 1.0},
			"Gain":                 {0.0, 48.0, 0.1},
			"AcquisitionFrameRate": {1.0, 120.0, 0},
			"LineDebounceDuration": {0.0, 5000.0, 0.1},
		},
	}
	return c
}

// ID returns the simulated camera identifier.
func (c *Camera) ID() string { return c.info.ID }

// Info returns the camera description.
func (c *Camera) Info() (engine.CameraInfo, error) { return c.info, nil }

// Stream returns the stream-level feature registry.
func (c *Camera) Stream() engine.Features { return &stream{cam: c} }

// PayloadSize derives the frame byte size from the current geometry
// features, rounded up to the reported alignment (for alignments >= 1,
// matching the transport-layer contract).
func (c *Camera) PayloadSize() (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.payloadSizeLocked(), nil
}

func (c *Camera) payloadSizeLocked() uint32 {
	bpp := bytesPerPixel[c.enumFeatures["PixelFormat"]]
	if bpp == 0 {
		bpp = 1
	}
	binH := c.intFeatures["BinningHorizontal"]
	binV := c.intFeatures["BinningVertical"]
	if binH < 1 {
		binH = 1
	}
	if binV < 1 {
		binV = 1
	}
	w := uint64(c.intFeatures["Width"]) / uint64(binH)
	h := uint64(c.intFeatures["Height"]) / uint64(binV)
	size := w * h * uint64(bpp)
	if c.alignment > 1 {
		a := uint64(c.alignment)
		size = (size + a - 1) / a * a
	}
	return uint32(size)
}

// Announce registers a buffer as a DMA target.
func (c *Camera) Announce(buf *engine.Buffer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if buf == nil || buf.Data == nil {
		return pkg.StatusBadParameter.Error()
	}
	if c.AnnounceErrAt >= 0 && len(c.announced) == c.AnnounceErrAt {
		return c.announceErr()
	}
	c.announced = append(c.announced, buf)
	return nil
}

func (c *Camera) announceErr() error {
	if c.AnnounceErr != nil {
		return c.AnnounceErr
	}
	return pkg.StatusError.Error()
}

// RevokeAll unregisters every announced buffer. While RevokeBusyCount
// is positive it reports busy instead, modeling in-flight DMA.
func (c *Camera) RevokeAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.RevokeBusyCount > 0 {
		c.RevokeBusyCount--
		return pkg.StatusBusy.Error()
	}
	c.announced = nil
	c.queue = nil
	return nil
}

// CaptureStart starts the simulated capture loop.
func (c *Camera) CaptureStart() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.CaptureStartErr != nil {
		return c.CaptureStartErr
	}
	c.capturing = true
	return nil
}

// CaptureEnd stops the simulated capture loop.
func (c *Camera) CaptureEnd() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.CaptureEndErr != nil {
		return c.CaptureEndErr
	}
	c.capturing = false
	return nil
}

// QueueFlush discards all queued buffers.
func (c *Camera) QueueFlush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.QueueFlushErr != nil {
		return c.QueueFlushErr
	}
	c.queue = nil
	return nil
}

// Queue submits an announced buffer for the next simulated capture.
func (c *Camera) Queue(buf *engine.Buffer, done engine.FrameDone) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if buf == nil || done == nil {
		return pkg.StatusBadParameter.Error()
	}
	if c.QueueErrAt >= 0 && len(c.queue) == c.QueueErrAt {
		if c.QueueErr != nil {
			return c.QueueErr
		}
		return pkg.StatusError.Error()
	}
	if !c.isAnnouncedLocked(buf) {
		return fmt.Errorf("%w: buffer not announced", pkg.StatusBadParameter.Error())
	}
	c.queue = append(c.queue, queued{buf: buf, done: done})
	return nil
}

func (c *Camera) isAnnouncedLocked(buf *engine.Buffer) bool {
	for _, a := range c.announced {
		if a == buf {
			return true
		}
	}
	return false
}

// Close ends the simulated session.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
	c.capturing = false
	return nil
}

// Deliver completes up to n queued buffers in FIFO order, filling the
// completion metadata and invoking the registered callbacks on the
// caller's goroutine. It returns the number of buffers delivered.
// Nothing is delivered unless the capture loop is running.
func (c *Camera) Deliver(n int) int {
	delivered := 0
	for delivered < n {
		c.mu.Lock()
		if !c.capturing || len(c.queue) == 0 {
			c.mu.Unlock()
			break
		}
		q := c.queue[0]
		c.queue = c.queue[1:]
		c.nextFrameID++
		c.deviceTime += frameInterval
		binH := c.intFeatures["BinningHorizontal"]
		binV := c.intFeatures["BinningVertical"]
		q.buf.Status = engine.BufferComplete
		q.buf.FrameID = c.nextFrameID
		q.buf.Timestamp = c.deviceTime
		q.buf.Width = uint32(c.intFeatures["Width"] / max64(binH, 1))
		q.buf.Height = uint32(c.intFeatures["Height"] / max64(binV, 1))
		if len(q.buf.Data) > 0 {
			q.buf.Data[0] = byte(c.nextFrameID)
		}
		c.mu.Unlock()

		// Callback runs unlocked so it can requeue the buffer.
		q.done(c, c.Stream(), q.buf)
		delivered++
	}
	return delivered
}

// DeliverAll completes every queued buffer once.
func (c *Camera) DeliverAll() int {
	c.mu.Lock()
	n := len(c.queue)
	c.mu.Unlock()
	return c.Deliver(n)
}

// AnnouncedCount returns the number of currently announced buffers.
func (c *Camera) AnnouncedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.announced)
}

// AnnouncedBuffers returns the announced buffers in announce order.
func (c *Camera) AnnouncedBuffers() []*engine.Buffer {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*engine.Buffer, len(c.announced))
	copy(out, c.announced)
	return out
}

// QueuedCount returns the number of buffers awaiting delivery.
func (c *Camera) QueuedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Capturing reports whether the simulated capture loop is running.
func (c *Camera) Capturing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capturing
}

// CommandRuns returns how many times the named command has been run,
// counting both device and stream command groups.
func (c *Camera) CommandRuns(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commandRuns[name]
}

// Feature access.

// GetInt reads a simulated integer feature.
func (c *Camera) GetInt(name string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.FeatureErrs[name]; err != nil {
		return 0, err
	}
	v, ok := c.intFeatures[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", pkg.StatusUnsupported.Error(), name)
	}
	return v, nil
}

// SetInt writes a simulated integer feature.
func (c *Camera) SetInt(name string, value int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.FeatureErrs[name]; err != nil {
		return err
	}
	if _, ok := c.intFeatures[name]; !ok {
		return fmt.Errorf("%w: %s", pkg.StatusUnsupported.Error(), name)
	}
	c.intFeatures[name] = value
	return nil
}

// GetFloat reads a simulated float feature.
func (c *Camera) GetFloat(name string) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.FeatureErrs[name]; err != nil {
		return 0, err
	}
	v, ok := c.floatFeatures[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", pkg.StatusUnsupported.Error(), name)
	}
	return v, nil
}

// SetFloat writes a simulated float feature.
func (c *Camera) SetFloat(name string, value float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.FeatureErrs[name]; err != nil {
		return err
	}
	if _, ok := c.floatFeatures[name]; !ok {
		return fmt.Errorf("%w: %s", pkg.StatusUnsupported.Error(), name)
	}
	c.floatFeatures[name] = value
	return nil
}

// GetBool reads a simulated boolean feature.
func (c *Camera) GetBool(name string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.FeatureErrs[name]; err != nil {
		return false, err
	}
	v, ok := c.boolFeatures[name]
	if !ok {
		return false, fmt.Errorf("%w: %s", pkg.StatusUnsupported.Error(), name)
	}
	return v, nil
}

// SetBool writes a simulated boolean feature.
func (c *Camera) SetBool(name string, value bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.FeatureErrs[name]; err != nil {
		return err
	}
	if _, ok := c.boolFeatures[name]; !ok {
		return fmt.Errorf("%w: %s", pkg.StatusUnsupported.Error(), name)
	}
	c.boolFeatures[name] = value
	return nil
}

// GetEnum reads the current entry of a simulated enumeration feature.
func (c *Camera) GetEnum(name string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.FeatureErrs[name]; err != nil {
		return "", err
	}
	v, ok := c.enumFeatures[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", pkg.StatusUnsupported.Error(), name)
	}
	return v, nil
}

// SetEnum selects an entry of a simulated enumeration feature. The
// entry must be one of the feature's defined entries.
func (c *Camera) SetEnum(name string, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.FeatureErrs[name]; err != nil {
		return err
	}
	entries, ok := c.enumEntries[name]
	if !ok {
		return fmt.Errorf("%w: %s", pkg.StatusUnsupported.Error(), name)
	}
	for _, e := range entries {
		if e == value {
			c.enumFeatures[name] = value
			return nil
		}
	}
	return fmt.Errorf("%w: %s=%q", pkg.StatusBadParameter.Error(), name, value)
}

// EnumEntries returns the entries of a simulated enumeration feature.
// All entries are reported available.
func (c *Camera) EnumEntries(name string) ([]string, []bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.FeatureErrs[name]; err != nil {
		return nil, nil, err
	}
	entries, ok := c.enumEntries[name]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", pkg.StatusUnsupported.Error(), name)
	}
	out := make([]string, len(entries))
	copy(out, entries)
	avail := make([]bool, len(entries))
	for i := range avail {
		avail[i] = true
	}
	return out, avail, nil
}

// IntRange returns the range of a simulated integer feature.
func (c *Camera) IntRange(name string) (int64, int64, int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.FeatureErrs[name]; err != nil {
		return 0, 0, 0, err
	}
	r, ok := c.intRanges[name]
	if !ok {
		return 0, 0, 0, fmt.Errorf("%w: %s", pkg.StatusUnsupported.Error(), name)
	}
	return r[0], r[1], r[2], nil
}

// FloatRange returns the range of a simulated float feature.
func (c *Camera) FloatRange(name string) (float64, float64, float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.FeatureErrs[name]; err != nil {
		return 0, 0, 0, err
	}
	r, ok := c.floatRanges[name]
	if !ok {
		return 0, 0, 0, fmt.Errorf("%w: %s", pkg.StatusUnsupported.Error(), name)
	}
	return r[0], r[1], r[2], nil
}

// RunCommand records a command execution.
func (c *Camera) RunCommand(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.CommandErrs[name]; err != nil {
		return err
	}
	c.commandRuns[name]++
	return nil
}

// CommandDone reports command completion, honoring CommandPending.
func (c *Camera) CommandDone(name string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.CommandErrs[name]; err != nil {
		return false, err
	}
	if c.CommandPending[name] > 0 {
		c.CommandPending[name]--
		return false, nil
	}
	return true, nil
}

// stream exposes the stream-level feature group of a simulated camera.
type stream struct {
	cam *Camera
}

// GetInt reads a stream feature. Only the buffer alignment feature is
// modeled at stream level.
func (s *stream) GetInt(name string) (int64, error) {
	s.cam.mu.Lock()
	defer s.cam.mu.Unlock()
	if err := s.cam.FeatureErrs[name]; err != nil {
		return 0, err
	}
	if name == engine.FeatureBufferAlignment {
		return s.cam.alignment, nil
	}
	return 0, fmt.Errorf("%w: %s", pkg.StatusUnsupported.Error(), name)
}

func (s *stream) SetInt(name string, value int64) error {
	return fmt.Errorf("%w: %s", pkg.StatusUnsupported.Error(), name)
}

func (s *stream) GetFloat(name string) (float64, error) {
	return 0, fmt.Errorf("%w: %s", pkg.StatusUnsupported.Error(), name)
}

func (s *stream) SetFloat(name string, value float64) error {
	return fmt.Errorf("%w: %s", pkg.StatusUnsupported.Error(), name)
}

func (s *stream) GetBool(name string) (bool, error) {
	return false, fmt.Errorf("%w: %s", pkg.StatusUnsupported.Error(), name)
}

func (s *stream) SetBool(name string, value bool) error {
	return fmt.Errorf("%w: %s", pkg.StatusUnsupported.Error(), name)
}

func (s *stream) GetEnum(name string) (string, error) {
	return "", fmt.Errorf("%w: %s", pkg.StatusUnsupported.Error(), name)
}

func (s *stream) SetEnum(name string, value string) error {
	return fmt.Errorf("%w: %s", pkg.StatusUnsupported.Error(), name)
}

func (s *stream) EnumEntries(name string) ([]string, []bool, error) {
	return nil, nil, fmt.Errorf("%w: %s", pkg.StatusUnsupported.Error(), name)
}

func (s *stream) IntRange(name string) (int64, int64, int64, error) {
	return 0, 0, 0, fmt.Errorf("%w: %s", pkg.StatusUnsupported.Error(), name)
}

func (s *stream) FloatRange(name string) (float64, float64, float64, error) {
	return 0, 0, 0, fmt.Errorf("%w: %s", pkg.StatusUnsupported.Error(), name)
}

// RunCommand records a stream command execution (packet-size tuning).
func (s *stream) RunCommand(name string) error {
	return s.cam.RunCommand(name)
}

// CommandDone reports stream command completion.
func (s *stream) CommandDone(name string) (bool, error) {
	return s.cam.CommandDone(name)
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// Compile-time interface checks.
var (
	_ engine.Engine   = (*Engine)(nil)
	_ engine.Device   = (*Camera)(nil)
	_ engine.Features = (*stream)(nil)
)
