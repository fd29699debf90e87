package camera

import (
	"math"
	"sync"
	"time"
)

// fpsStableRatio is the stability criterion: delivery is considered
// stable when the instantaneous-FPS standard deviation stays below
// this fraction of the mean FPS.
const fpsStableRatio = 0.15

// DeliveryStats summarizes frame delivery since the last capture start
// (or ResetStats call).
type DeliveryStats struct {
	Frames   uint64        // Completed frames observed
	Duration time.Duration // Wall time from first to last completion

	FPSMean   float64 // Mean frames per second
	FPSMin    float64 // Slowest instantaneous rate
	FPSMax    float64 // Fastest instantaneous rate
	FPSStdDev float64 // Standard deviation of instantaneous rates

	JitterMean time.Duration // Mean inter-frame interval variation
	JitterMax  time.Duration // Largest inter-frame interval variation

	IsStable bool // StdDev below fpsStableRatio of the mean
}

// deliveryStats accumulates per-completion timing online so the
// trampoline never buffers timestamps.
type deliveryStats struct {
	mu sync.Mutex

	frames uint64
	first  time.Time
	last   time.Time

	fpsSum   float64
	fpsSumSq float64
	fpsMin   float64
	fpsMax   float64

	prevDt    time.Duration
	jitterSum time.Duration
	jitterMax time.Duration
	jitters   uint64
}

// recordDelivery notes one frame completion. It runs on the engine's
// delivery thread and takes only the stats lock, never the control
// mutex.
func (c *Camera) recordDelivery() {
	now := time.Now()
	s := &c.stats
	s.mu.Lock()
	defer s.mu.Unlock()

	s.frames++
	if s.first.IsZero() {
		s.first = now
		s.last = now
		return
	}
	interval := now.Sub(s.last)
	s.last = now
	dt := interval.Seconds()
	if dt <= 0 {
		return
	}
	fps := 1.0 / dt
	s.fpsSum += fps
	s.fpsSumSq += fps * fps
	if s.fpsMin == 0 || fps < s.fpsMin {
		s.fpsMin = fps
	}
	if fps > s.fpsMax {
		s.fpsMax = fps
	}

	// Jitter is the variation between consecutive inter-frame intervals.
	if s.prevDt > 0 {
		j := interval - s.prevDt
		if j < 0 {
			j = -j
		}
		s.jitterSum += j
		s.jitters++
		if j > s.jitterMax {
			s.jitterMax = j
		}
	}
	s.prevDt = interval
}

// resetStatsLocked clears the accumulators; called at capture start.
func (c *Camera) resetStatsLocked() {
	s := &c.stats
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = 0
	s.first = time.Time{}
	s.last = time.Time{}
	s.fpsSum = 0
	s.fpsSumSq = 0
	s.fpsMin = 0
	s.fpsMax = 0
	s.prevDt = 0
	s.jitterSum = 0
	s.jitterMax = 0
	s.jitters = 0
}

// ResetStats clears the delivery statistics.
func (c *Camera) ResetStats() {
	c.resetStatsLocked()
}

// Stats returns a snapshot of the delivery statistics.
func (c *Camera) Stats() DeliveryStats {
	s := &c.stats
	s.mu.Lock()
	defer s.mu.Unlock()

	out := DeliveryStats{
		Frames:    s.frames,
		Duration:  s.last.Sub(s.first),
		FPSMin:    s.fpsMin,
		FPSMax:    s.fpsMax,
		JitterMax: s.jitterMax,
	}
	if s.jitters > 0 {
		out.JitterMean = s.jitterSum / time.Duration(s.jitters)
	}
	intervals := float64(0)
	if s.frames > 1 {
		intervals = float64(s.frames - 1)
	}
	if intervals > 0 {
		out.FPSMean = s.fpsSum / intervals
		variance := s.fpsSumSq/intervals - out.FPSMean*out.FPSMean
		if variance > 0 {
			out.FPSStdDev = math.Sqrt(variance)
		}
		out.IsStable = out.FPSStdDev < fpsStableRatio*out.FPSMean
	}
	return out
}
