package telemetry

import (
	"gonum.org/v1/gonum/floats"

	"github.com/pthm-cable/fluid/params"
	"github.com/pthm-cable/fluid/particles"
	"github.com/pthm-cable/fluid/sph"
)

// Collector accumulates frame reports within windows and produces FrameStats.
type Collector struct {
	windowFrames uint64

	// Current window tracking
	windowStartFrame uint64
	simTime          float64

	// Event counters for current window
	nonFinite int
	clamped   int
}

// NewCollector creates a collector flushing every windowFrames frames.
func NewCollector(windowFrames int) *Collector {
	if windowFrames < 1 {
		windowFrames = 1
	}
	return &Collector{windowFrames: uint64(windowFrames)}
}

// Record adds one committed frame to the current window. dt is the
// simulated time the frame advanced.
func (c *Collector) Record(r sph.FrameReport, dt float64) {
	c.nonFinite += r.NonFinite
	c.clamped += r.Clamped
	c.simTime += dt
}

// ShouldFlush returns true if enough frames have passed to flush the window.
func (c *Collector) ShouldFlush(frame uint64) bool {
	return frame-c.windowStartFrame >= c.windowFrames
}

// Flush produces FrameStats from the latest report and particle state, then
// resets the window counters. r must come from the most recent Step.
func (c *Collector) Flush(r sph.FrameReport, set *particles.Set, p params.Parameters, version uint64) FrameStats {
	densityMean, densityStd, densityP90, densityMax := ComputeDensityStats(r.Density)
	kinetic, meanSpeed, maxSpeed := ComputeMotionStats(set.Velocities, float64(p.ParticleMass))

	var nearMean float64
	if len(r.NearDensity) > 0 {
		nearMean = floats.Sum(r.NearDensity) / float64(len(r.NearDensity))
	}

	stats := FrameStats{
		WindowStartFrame: c.windowStartFrame,
		WindowEndFrame:   r.Frame,
		SimTime:          c.simTime,
		Particles:        set.Len(),
		ParamsVersion:    version,

		NonFinite: c.nonFinite,
		Clamped:   c.clamped,

		KineticEnergy: kinetic,
		MeanSpeed:     meanSpeed,
		MaxSpeed:      maxSpeed,

		DensityMean:     densityMean,
		DensityStd:      densityStd,
		DensityP90:      densityP90,
		DensityMax:      densityMax,
		DensityError:    ComputeDensityError(r.Density, float64(p.RestDensity)),
		NearDensityMean: nearMean,

		MeanNeighbours: r.MeanNeighbours,
		MaxNeighbours:  r.MaxNeighbours,
	}

	// Reset for next window
	c.windowStartFrame = r.Frame
	c.nonFinite = 0
	c.clamped = 0

	return stats
}

// WindowFrames returns the number of frames per window.
func (c *Collector) WindowFrames() uint64 {
	return c.windowFrames
}
