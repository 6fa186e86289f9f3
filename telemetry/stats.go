package telemetry

import (
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"
)

// FrameStats holds aggregated statistics for a window of frames. Counters
// cover the whole window; distributions are sampled at the window end.
type FrameStats struct {
	WindowStartFrame uint64  `csv:"-"`
	WindowEndFrame   uint64  `csv:"window_end"`
	SimTime          float64 `csv:"sim_time"`
	Particles        int     `csv:"particles"`
	ParamsVersion    uint64  `csv:"params_version"`

	// Events during window
	NonFinite int `csv:"non_finite"`
	Clamped   int `csv:"clamped"`

	// Motion
	KineticEnergy float64 `csv:"kinetic_energy"`
	MeanSpeed     float64 `csv:"mean_speed"`
	MaxSpeed      float64 `csv:"max_speed"`

	// Density distribution
	DensityMean     float64 `csv:"density_mean"`
	DensityStd      float64 `csv:"density_std"`
	DensityP90      float64 `csv:"density_p90"`
	DensityMax      float64 `csv:"density_max"`
	DensityError    float64 `csv:"density_error"` // mean |rho - rest| / rest
	NearDensityMean float64 `csv:"near_density_mean"`

	// Neighbourhoods
	MeanNeighbours float64 `csv:"mean_neighbours"`
	MaxNeighbours  int     `csv:"max_neighbours"`
}

// Percentile calculates the p-th percentile of a sorted slice.
// p should be in [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	// Linear interpolation
	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// ComputeDensityStats returns the population mean and standard deviation,
// the 90th percentile and the maximum of values.
func ComputeDensityStats(values []float64) (mean, std, p90, maxv float64) {
	if len(values) == 0 {
		return 0, 0, 0, 0
	}
	mean, std = stat.PopMeanStdDev(values, nil)

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	return mean, std, Percentile(sorted, 0.90), floats.Max(values)
}

// ComputeDensityError returns the mean relative deviation from rest density.
func ComputeDensityError(values []float64, rest float64) float64 {
	if len(values) == 0 || rest <= 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += math.Abs(v-rest) / rest
	}
	return sum / float64(len(values))
}

// ComputeMotionStats returns the kinetic energy 1/2 m sum |v|^2 and the
// mean and maximum speed of velocities.
func ComputeMotionStats(velocities []r3.Vec, mass float64) (kinetic, meanSpeed, maxSpeed float64) {
	if len(velocities) == 0 {
		return 0, 0, 0
	}
	speeds := make([]float64, len(velocities))
	var sq float64
	for i, v := range velocities {
		d := r3.Dot(v, v)
		sq += d
		speeds[i] = math.Sqrt(d)
	}
	return 0.5 * mass * sq, floats.Sum(speeds) / float64(len(speeds)), floats.Max(speeds)
}

// LogValue implements slog.LogValuer for structured logging.
func (s FrameStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("window_start", s.WindowStartFrame),
		slog.Uint64("window_end", s.WindowEndFrame),
		slog.Float64("sim_time", s.SimTime),
		slog.Int("particles", s.Particles),
		slog.Uint64("params_version", s.ParamsVersion),
		slog.Int("non_finite", s.NonFinite),
		slog.Int("clamped", s.Clamped),
		slog.Float64("kinetic_energy", s.KineticEnergy),
		slog.Float64("mean_speed", s.MeanSpeed),
		slog.Float64("max_speed", s.MaxSpeed),
		slog.Float64("density_mean", s.DensityMean),
		slog.Float64("density_std", s.DensityStd),
		slog.Float64("density_p90", s.DensityP90),
		slog.Float64("density_max", s.DensityMax),
		slog.Float64("density_error", s.DensityError),
		slog.Float64("near_density_mean", s.NearDensityMean),
		slog.Float64("mean_neighbours", s.MeanNeighbours),
		slog.Int("max_neighbours", s.MaxNeighbours),
	)
}

// LogStats logs the window stats using slog.
func (s FrameStats) LogStats() {
	slog.Info("stats",
		"window_end", s.WindowEndFrame,
		"sim_time", s.SimTime,
		"particles", s.Particles,
		"params_version", s.ParamsVersion,
		"non_finite", s.NonFinite,
		"clamped", s.Clamped,
		"kinetic_energy", s.KineticEnergy,
		"max_speed", s.MaxSpeed,
		"density_mean", s.DensityMean,
		"density_std", s.DensityStd,
		"density_p90", s.DensityP90,
		"density_error", s.DensityError,
		"mean_neighbours", s.MeanNeighbours,
		"max_neighbours", s.MaxNeighbours,
	)
}
