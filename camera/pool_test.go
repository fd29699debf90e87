package camera

import (
	"context"
	"errors"
	"testing"
	"unsafe"

	"github.com/visionkit/gencam/camera/engine/sim"
	"github.com/visionkit/gencam/pkg"
)

// bufferAddr returns the base address of a payload slice.
func bufferAddr(data []byte) uintptr {
	return uintptr(unsafe.Pointer(&data[0]))
}

// =============================================================================
// Test Fixtures
// =============================================================================

// newTestCamera starts a simulated runtime with one camera attached and
// opens it. The returned sim camera gives tests white-box access to the
// engine side of the session.
func newTestCamera(t *testing.T, cfg sim.Config) (*Runtime, *Camera, *sim.Camera) {
	t.Helper()
	eng := sim.New()
	simCam := eng.AddCamera(cfg)
	rt := NewRuntime(eng)
	if err := rt.Startup(context.Background()); err != nil {
		t.Fatalf("Startup failed: %v", err)
	}
	t.Cleanup(func() { rt.Shutdown() })

	cam, err := rt.Open(context.Background(), "")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { cam.Close() })
	return rt, cam, simCam
}

// =============================================================================
// Pool Allocation Tests
// =============================================================================

func TestCamera_AllocateFrames(t *testing.T) {
	_, cam, _ := newTestCamera(t, sim.Config{Width: 64, Height: 32})

	if err := cam.AllocateFrames(4); err != nil {
		t.Fatalf("AllocateFrames failed: %v", err)
	}
	if got := cam.FrameCount(); got != 4 {
		t.Errorf("FrameCount() = %d, want 4", got)
	}
	if got := cam.FrameSize(); got != 64*32 {
		t.Errorf("FrameSize() = %d, want %d", got, 64*32)
	}
}

func TestCamera_AllocateFrames_Alignment(t *testing.T) {
	// 64-byte alignment, 1 KiB payload (32x32 Mono8), 4 frames.
	_, cam, _ := newTestCamera(t, sim.Config{Width: 32, Height: 32, Alignment: 64})

	if err := cam.AllocateFrames(4); err != nil {
		t.Fatalf("AllocateFrames failed: %v", err)
	}
	if got := cam.FrameSize(); got != 1024 {
		t.Fatalf("FrameSize() = %d, want 1024", got)
	}
	for i, f := range cam.pool.frames {
		if len(f.Data) != 1024 {
			t.Errorf("frame %d payload = %d, want 1024", i, len(f.Data))
		}
		if addr := bufferAddr(f.Data); addr%64 != 0 {
			t.Errorf("frame %d base address %#x not 64-byte aligned", i, addr)
		}
	}
}

func TestCamera_AllocateFrames_InvalidCount(t *testing.T) {
	_, cam, _ := newTestCamera(t, sim.Config{})

	if err := cam.AllocateFrames(0); !errors.Is(err, pkg.ErrBadParameter) {
		t.Errorf("AllocateFrames(0) = %v, want ErrBadParameter", err)
	}
	if err := cam.AllocateFrames(MaxFrames + 1); !errors.Is(err, pkg.ErrBadParameter) {
		t.Errorf("AllocateFrames(%d) = %v, want ErrBadParameter", MaxFrames+1, err)
	}
}

func TestCamera_AllocateFrames_Replaces(t *testing.T) {
	_, cam, _ := newTestCamera(t, sim.Config{Width: 16, Height: 16})

	if err := cam.AllocateFrames(3); err != nil {
		t.Fatalf("AllocateFrames(3) failed: %v", err)
	}
	old := cam.pool.frames
	if err := cam.AllocateFrames(5); err != nil {
		t.Fatalf("AllocateFrames(5) failed: %v", err)
	}
	if got := cam.FrameCount(); got != 5 {
		t.Errorf("FrameCount() = %d, want 5", got)
	}
	for i, f := range cam.pool.frames {
		for _, o := range old {
			if f == o {
				t.Errorf("frame %d reused from previous pool", i)
			}
		}
	}
}

func TestCamera_AllocateBuffer(t *testing.T) {
	// 16x16 Mono8 = 256-byte payload.
	_, cam, _ := newTestCamera(t, sim.Config{Width: 16, Height: 16})

	tests := []struct {
		budget uint64
		want   int
	}{
		{budget: 1024, want: 4},
		{budget: 1000, want: 3}, // Truncates, never over-allocates
		{budget: 100, want: 1},  // Always at least one frame
		{budget: 256 * (MaxFrames + 10), want: MaxFrames},
	}
	for _, tt := range tests {
		if err := cam.AllocateBuffer(tt.budget); err != nil {
			t.Fatalf("AllocateBuffer(%d) failed: %v", tt.budget, err)
		}
		if got := cam.FrameCount(); got != tt.want {
			t.Errorf("AllocateBuffer(%d): FrameCount() = %d, want %d",
				tt.budget, got, tt.want)
		}
	}

	if err := cam.AllocateBuffer(0); !errors.Is(err, pkg.ErrBadParameter) {
		t.Errorf("AllocateBuffer(0) = %v, want ErrBadParameter", err)
	}
}

func TestFrameCountForBudget(t *testing.T) {
	tests := []struct {
		budget    uint64
		alignment int64
		payload   uint32
		want      uint32
	}{
		{budget: 4096, alignment: 1, payload: 1024, want: 4},
		{budget: 4095, alignment: 1, payload: 1024, want: 3},
		{budget: 1, alignment: 1, payload: 1024, want: 1},
		{budget: 4090, alignment: 64, payload: 1024, want: 4}, // Budget realigned up
		{budget: 1 << 40, alignment: 1, payload: 1024, want: MaxFrames},
	}
	for _, tt := range tests {
		got := frameCountForBudget(tt.budget, tt.alignment, tt.payload)
		if got != tt.want {
			t.Errorf("frameCountForBudget(%d, %d, %d) = %d, want %d",
				tt.budget, tt.alignment, tt.payload, got, tt.want)
		}
	}
}

// =============================================================================
// Geometry Resolver Tests
// =============================================================================

func TestCamera_ResolveGeometry_ClampsAlignment(t *testing.T) {
	// A nonsensical alignment report is clamped to 1 instead of
	// poisoning the modulo arithmetic downstream.
	_, cam, _ := newTestCamera(t, sim.Config{Width: 16, Height: 16, Alignment: -5})

	alignment, payload, err := cam.resolveGeometry()
	if err != nil {
		t.Fatalf("resolveGeometry failed: %v", err)
	}
	if alignment != 1 {
		t.Errorf("alignment = %d, want 1", alignment)
	}
	if payload != 256 {
		t.Errorf("payload = %d, want 256", payload)
	}
}

func TestCamera_ResolveGeometry_ZeroPayload(t *testing.T) {
	_, cam, simCam := newTestCamera(t, sim.Config{Width: 16, Height: 16})

	// Zero geometry makes the reported payload zero, which no pool can
	// be built from.
	if err := simCam.SetInt("Width", 0); err != nil {
		t.Fatalf("SetInt(Width, 0) failed: %v", err)
	}
	if _, _, err := cam.resolveGeometry(); !errors.Is(err, pkg.ErrDeviceFault) {
		t.Errorf("resolveGeometry with zero payload = %v, want ErrDeviceFault", err)
	}
}

// =============================================================================
// Reallocation Tests
// =============================================================================

func TestCamera_Reallocate_NoopWhenUnchanged(t *testing.T) {
	_, cam, _ := newTestCamera(t, sim.Config{Width: 16, Height: 16})

	if err := cam.AllocateFrames(3); err != nil {
		t.Fatalf("AllocateFrames failed: %v", err)
	}
	before := cam.pool.frames

	// Same geometry, same count: descriptors must be untouched.
	cam.mu.Lock()
	err := cam.reallocateIfNeededLocked(3)
	cam.mu.Unlock()
	if err != nil {
		t.Fatalf("reallocateIfNeededLocked failed: %v", err)
	}
	for i := range before {
		if cam.pool.frames[i] != before[i] {
			t.Fatalf("frame %d replaced despite unchanged geometry", i)
		}
	}
}

func TestCamera_Reallocate_OnPayloadChange(t *testing.T) {
	_, cam, _ := newTestCamera(t, sim.Config{Width: 32, Height: 32})

	if err := cam.AllocateFrames(3); err != nil {
		t.Fatalf("AllocateFrames failed: %v", err)
	}
	before := cam.pool.frames

	// Halving the width changes the payload; every frame must be
	// replaced with a new allocation of the new size.
	if err := cam.SetImageSize(16, 32); err != nil {
		t.Fatalf("SetImageSize failed: %v", err)
	}
	if got := cam.FrameSize(); got != 16*32 {
		t.Errorf("FrameSize() = %d, want %d", got, 16*32)
	}
	if got := cam.FrameCount(); got != 3 {
		t.Errorf("FrameCount() = %d, want 3", got)
	}
	for i, f := range cam.pool.frames {
		for _, o := range before {
			if f == o {
				t.Errorf("frame %d survived a payload change", i)
			}
		}
	}
}

func TestCamera_Reallocate_OnCountChange(t *testing.T) {
	_, cam, _ := newTestCamera(t, sim.Config{Width: 16, Height: 16})

	if err := cam.AllocateFrames(3); err != nil {
		t.Fatalf("AllocateFrames failed: %v", err)
	}
	before := cam.pool.frames

	cam.mu.Lock()
	err := cam.reallocateIfNeededLocked(5)
	cam.mu.Unlock()
	if err != nil {
		t.Fatalf("reallocateIfNeededLocked failed: %v", err)
	}
	if got := cam.FrameCount(); got != 5 {
		t.Errorf("FrameCount() = %d, want 5", got)
	}
	for i, f := range cam.pool.frames {
		for _, o := range before {
			if f == o {
				t.Errorf("frame %d survived a count change", i)
			}
		}
	}
}

func TestCamera_Reallocate_SkipsEmptyPool(t *testing.T) {
	_, cam, _ := newTestCamera(t, sim.Config{Width: 32, Height: 32})

	// Geometry changes before any allocation must not conjure a pool.
	if err := cam.SetImageSize(16, 16); err != nil {
		t.Fatalf("SetImageSize failed: %v", err)
	}
	if got := cam.FrameCount(); got != 0 {
		t.Errorf("FrameCount() = %d, want 0", got)
	}
}

// =============================================================================
// Release / Recut Tests
// =============================================================================

func TestCamera_ReleasePool_FramesOnly(t *testing.T) {
	_, cam, _ := newTestCamera(t, sim.Config{Width: 16, Height: 16, Alignment: 64})

	if err := cam.AllocateFrames(3); err != nil {
		t.Fatalf("AllocateFrames failed: %v", err)
	}

	cam.mu.Lock()
	regions := len(cam.pool.regions)
	cam.releasePoolLocked(true)
	if cam.pool.frames != nil {
		t.Error("frames not released")
	}
	if len(cam.pool.regions) != regions {
		t.Errorf("regions = %d after frames-only release, want %d",
			len(cam.pool.regions), regions)
	}

	cam.recutPoolLocked()
	cam.mu.Unlock()

	if got := cam.FrameCount(); got != 3 {
		t.Errorf("FrameCount() after recut = %d, want 3", got)
	}
	for i, f := range cam.pool.frames {
		if bufferAddr(f.Data) != bufferAddr(cam.pool.regions[i].data) {
			t.Errorf("frame %d not recut over its original region", i)
		}
	}
}

func TestCamera_ReleasePool_Full(t *testing.T) {
	_, cam, _ := newTestCamera(t, sim.Config{Width: 16, Height: 16})

	if err := cam.AllocateFrames(3); err != nil {
		t.Fatalf("AllocateFrames failed: %v", err)
	}
	cam.mu.Lock()
	cam.releasePoolLocked(false)
	cam.mu.Unlock()

	if !cam.pool.empty() {
		t.Error("pool not empty after full release")
	}
	if cam.pool.payload != 0 || cam.pool.alignment != 0 {
		t.Errorf("pool geometry retained: payload=%d alignment=%d",
			cam.pool.payload, cam.pool.alignment)
	}
}
