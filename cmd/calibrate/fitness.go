package main

import (
	"context"
	"math"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/fluid/config"
	"github.com/pthm-cable/fluid/game"
	"github.com/pthm-cable/fluid/telemetry"
)

// Score weights.
const (
	speedWeight     = 0.05 // per unit of mean speed left after settling
	unstablePenalty = 10.0 // per window with reset particle states
	failedRun       = 1e6  // parameters the simulation rejected or crashed on

	warmupWindows = 2 // skip the initial collapse of the block
)

// FitnessEvaluator runs headless simulations and scores how well the fluid
// settles to its rest density.
type FitnessEvaluator struct {
	params     *ParamVector
	maxFrames  int
	counts     []uint32
	baseConfig *config.Config

	mu        sync.Mutex
	lastError float64 // mean density error from the most recent Evaluate call
}

// NewFitnessEvaluator creates a new evaluator. Each evaluation runs one
// simulation per entry in counts.
func NewFitnessEvaluator(params *ParamVector, maxFrames int, counts []uint32, baseCfg *config.Config) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:     params,
		maxFrames:  maxFrames,
		counts:     counts,
		baseConfig: baseCfg,
	}
}

// LastDensityError returns the mean density error from the most recent
// evaluation.
func (fe *FitnessEvaluator) LastDensityError() float64 {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastError
}

// runResult holds the results from a single simulation run.
type runResult struct {
	windows []telemetry.FrameStats
	err     error
}

// Evaluate computes the score for a raw parameter vector (lower = better).
func (fe *FitnessEvaluator) Evaluate(ctx context.Context, x []float64) float64 {
	results := make([]runResult, len(fe.counts))
	var wg sync.WaitGroup
	for i, n := range fe.counts {
		wg.Add(1)
		go func(idx int, count uint32) {
			defer wg.Done()
			results[idx] = fe.runSimulation(ctx, x, count)
		}(i, n)
	}
	wg.Wait()

	var total, densityErr float64
	for _, r := range results {
		if r.err != nil {
			total += failedRun
			continue
		}
		total += score(r.windows)
		densityErr += meanDensityError(r.windows)
	}
	n := float64(len(fe.counts))
	avg := total / n

	fe.mu.Lock()
	fe.lastError = densityErr / n
	fe.mu.Unlock()

	return avg
}

// runSimulation executes a single headless run of maxFrames frames.
func (fe *FitnessEvaluator) runSimulation(ctx context.Context, x []float64, count uint32) runResult {
	cfg := *fe.baseConfig
	cfg.Parameters = fe.params.Apply(cfg.Parameters, x)
	cfg.Parameters.ParticleCount = count
	cfg.Simulation.Workers = 1 // runs already execute in parallel
	cfg.Telemetry.OutputDir = ""
	if err := cfg.Parameters.Validate(); err != nil {
		return runResult{err: err}
	}

	var result runResult
	g, err := game.NewGameWithOptions(game.Options{
		Config:   &cfg,
		Headless: true,
		StatsCallback: func(stats telemetry.FrameStats) {
			result.windows = append(result.windows, stats)
		},
	})
	if err != nil {
		return runResult{err: err}
	}
	defer g.Unload()

	for int(g.Frame()) < fe.maxFrames {
		if err := g.UpdateHeadless(ctx); err != nil {
			return runResult{err: err}
		}
	}
	return result
}

// score rates the windows after warmup: the density error plus a small
// term for residual motion, with a penalty for every unstable window.
func score(windows []telemetry.FrameStats) float64 {
	if len(windows) <= warmupWindows {
		return failedRun
	}
	valid := windows[warmupWindows:]

	errs := make([]float64, len(valid))
	speeds := make([]float64, len(valid))
	penalty := 0.0
	for i, w := range valid {
		errs[i] = w.DensityError
		speeds[i] = w.MeanSpeed
		if w.NonFinite > 0 {
			penalty += unstablePenalty
		}
	}
	s := stat.Mean(errs, nil) + speedWeight*stat.Mean(speeds, nil) + penalty
	if math.IsNaN(s) || math.IsInf(s, 0) {
		return failedRun
	}
	return s
}

// meanDensityError averages the density error over the windows after
// warmup.
func meanDensityError(windows []telemetry.FrameStats) float64 {
	if len(windows) <= warmupWindows {
		return 0
	}
	errs := make([]float64, 0, len(windows)-warmupWindows)
	for _, w := range windows[warmupWindows:] {
		errs = append(errs, w.DensityError)
	}
	return stat.Mean(errs, nil)
}
