package camera

import (
	"fmt"
	"unsafe"

	"github.com/visionkit/gencam/camera/engine"
	"github.com/visionkit/gencam/pkg"
)

// MaxFrames caps the number of descriptors a pool may hold. A derived
// frame count exceeding it indicates a sizing computation bug upstream
// and is clamped defensively.
const MaxFrames = 256

// region is one backing allocation and its aligned payload window.
type region struct {
	backing []byte // Original allocation, padded for alignment
	data    []byte // Aligned payload slice handed to the engine
}

// framePool owns the camera's frame descriptors. All descriptors share
// one payload size and one alignment; the pool is rebuilt wholesale
// whenever either changes.
type framePool struct {
	frames    []*engine.Buffer
	regions   []region
	alignment int64
	payload   uint32
}

// empty reports whether the pool currently holds no descriptors.
func (p *framePool) empty() bool {
	return len(p.frames) == 0
}

// totalBytes returns the pool's payload byte total.
func (p *framePool) totalBytes() uint64 {
	return uint64(len(p.frames)) * uint64(p.payload)
}

// alignedRegion allocates payload bytes whose base address is a
// multiple of align. Go's allocator gives no alignment guarantee above
// the natural word size, so the region over-allocates and offsets.
func alignedRegion(payload uint32, align int64) region {
	backing := make([]byte, int(payload)+int(align)-1)
	off := 0
	if align > 1 {
		addr := uintptr(unsafe.Pointer(&backing[0]))
		if rem := addr % uintptr(align); rem != 0 {
			off = int(uintptr(align) - rem)
		}
	}
	return region{
		backing: backing,
		data:    backing[off : off+int(payload)],
	}
}

// resolveGeometry queries the engine for the stream buffer alignment
// and the current payload size.
//
// A missing or nonsensical alignment report is clamped to 1: alignment
// feeds modulo arithmetic and must never be zero. The payload query is
// a one-shot diagnostic and its failure propagates verbatim. The
// payload being a multiple of the alignment is a transport-layer
// contract this resolver asserts but does not re-derive.
func (c *Camera) resolveGeometry() (int64, uint32, error) {
	alignment, err := c.dev.Stream().GetInt(engine.FeatureBufferAlignment)
	if err != nil || alignment < 1 {
		alignment = 1
	}
	payload, err := c.dev.PayloadSize()
	if err != nil {
		return 0, 0, err
	}
	if payload == 0 || uint64(payload)%uint64(alignment) != 0 {
		return 0, 0, fmt.Errorf("%w: payload %d not a multiple of alignment %d",
			pkg.ErrDeviceFault, payload, alignment)
	}
	return alignment, payload, nil
}

// frameCountForBudget derives a frame count from a byte budget: the
// larger of the budget re-aligned to the new alignment and one payload,
// divided by the payload, clamped to [1, MaxFrames].
func frameCountForBudget(budget uint64, alignment int64, payload uint32) uint32 {
	if alignment > 1 {
		a := uint64(alignment)
		budget = (budget + a - 1) / a * a
	}
	if budget < uint64(payload) {
		budget = uint64(payload)
	}
	count := budget / uint64(payload)
	if count > MaxFrames {
		count = MaxFrames
	}
	return uint32(count)
}

// allocatePoolLocked replaces the pool with count freshly allocated,
// aligned descriptors. An existing pool is quiesced and released
// first: revoking buffers while they are announced to a live capture
// engine is unsafe. On any failure the previous pool is already gone
// and the pool is left empty; no partially constructed pool is ever
// retained.
func (c *Camera) allocatePoolLocked(count uint32) error {
	if count == 0 {
		return fmt.Errorf("%w: zero frame count", pkg.ErrBadParameter)
	}
	if count > MaxFrames {
		return fmt.Errorf("%w: frame count %d exceeds maximum %d",
			pkg.ErrBadParameter, count, MaxFrames)
	}
	alignment, payload, err := c.resolveGeometry()
	if err != nil {
		return err
	}
	if !c.pool.empty() {
		if err := c.stopCaptureLocked(); err != nil {
			return err
		}
		c.releasePoolLocked(false)
	}
	return c.buildPoolLocked(alignment, payload, count)
}

// buildPoolLocked constructs the descriptor array for an empty pool.
func (c *Camera) buildPoolLocked(alignment int64, payload uint32, count uint32) error {
	frames := make([]*engine.Buffer, 0, count)
	regions := make([]region, 0, count)
	for i := uint32(0); i < count; i++ {
		r := alignedRegion(payload, alignment)
		regions = append(regions, r)
		frames = append(frames, &engine.Buffer{Data: r.data})
	}
	c.pool = framePool{
		frames:    frames,
		regions:   regions,
		alignment: alignment,
		payload:   payload,
	}
	pkg.LogDebug(pkg.ComponentPool, "pool allocated",
		"id", c.dev.ID(),
		"frames", count,
		"payload", payload,
		"alignment", alignment)
	return nil
}

// releasePoolLocked tears the pool down. With framesOnly set, only the
// descriptor array is dropped and the aligned regions are kept for
// recutting; otherwise descriptors and backing memory are both
// released and the pool resets to empty.
func (c *Camera) releasePoolLocked(framesOnly bool) {
	c.pool.frames = nil
	if framesOnly {
		return
	}
	c.pool.regions = nil
	c.pool.alignment = 0
	c.pool.payload = 0
}

// recutPoolLocked rebuilds the descriptor array over the retained
// regions after a frames-only release. The regions must still match
// the pool's recorded geometry.
func (c *Camera) recutPoolLocked() {
	frames := make([]*engine.Buffer, 0, len(c.pool.regions))
	for _, r := range c.pool.regions {
		frames = append(frames, &engine.Buffer{Data: r.data})
	}
	c.pool.frames = frames
}

// reallocateIfNeededLocked recomputes the buffer geometry and rebuilds
// the pool when the alignment, the payload size, or the requested
// frame count changed. A zero count derives the new count from the
// previous pool's byte total. Matching geometry is a no-op. The device
// must not be capturing across a rebuild, so capture is stopped first
// (idempotent when already stopped).
func (c *Camera) reallocateIfNeededLocked(count uint32) error {
	if c.pool.empty() {
		return nil
	}
	alignment, payload, err := c.resolveGeometry()
	if err != nil {
		return err
	}
	if count == 0 {
		count = frameCountForBudget(c.pool.totalBytes(), alignment, payload)
	}
	if alignment == c.pool.alignment && payload == c.pool.payload &&
		count == uint32(len(c.pool.frames)) {
		return nil
	}
	if err := c.stopCaptureLocked(); err != nil {
		return err
	}
	c.releasePoolLocked(false)
	return c.buildPoolLocked(alignment, payload, count)
}

// AllocateFrames sizes the frame pool to count descriptors matching
// the device's current payload size and alignment requirement. Any
// existing pool is stopped and fully replaced; the pool is never
// resized in place.
func (c *Camera) AllocateFrames(count uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpenLocked(); err != nil {
		return err
	}
	return c.allocatePoolLocked(count)
}

// AllocateBuffer sizes the frame pool from a byte budget: the frame
// count is derived by dividing the budget by the current payload size,
// clamped to [1, MaxFrames].
func (c *Camera) AllocateBuffer(budget uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpenLocked(); err != nil {
		return err
	}
	if budget == 0 {
		return fmt.Errorf("%w: zero buffer budget", pkg.ErrBadParameter)
	}
	alignment, payload, err := c.resolveGeometry()
	if err != nil {
		return err
	}
	return c.allocatePoolLocked(frameCountForBudget(budget, alignment, payload))
}

// FrameCount returns the number of descriptors in the pool.
func (c *Camera) FrameCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pool.frames)
}

// FrameSize returns the payload byte size of the pool's descriptors,
// or zero when no pool is allocated.
func (c *Camera) FrameSize() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pool.payload
}
