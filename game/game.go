// Package game runs the simulation loop: it advances the pipeline with the
// latest parameter snapshot, publishes frames and drives telemetry.
package game

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pthm-cable/fluid/camera"
	"github.com/pthm-cable/fluid/config"
	"github.com/pthm-cable/fluid/grid"
	"github.com/pthm-cable/fluid/params"
	"github.com/pthm-cable/fluid/particles"
	"github.com/pthm-cable/fluid/renderer"
	"github.com/pthm-cable/fluid/sph"
	"github.com/pthm-cable/fluid/stream"
	"github.com/pthm-cable/fluid/telemetry"
	"github.com/pthm-cable/fluid/workers"
)

// Options configures a Game.
type Options struct {
	Config         *config.Config
	Store          *params.Store // shared with the settings listener; created from Config if nil
	Hub            *stream.Hub   // optional frame broadcaster
	LogStats       bool
	OutputDir      string
	Headless       bool
	StepsPerUpdate int
	StatsCallback  func(telemetry.FrameStats) // called on every window flush
}

// Game holds the complete simulation state.
type Game struct {
	cfg   *config.Config
	store *params.Store
	hub   *stream.Hub

	pool     *workers.Pool
	set      *particles.Set
	pipeline *sph.Pipeline

	// Latest frame
	snapshot   params.Parameters
	version    uint64
	report     sph.FrameReport
	instances  []particles.Instance
	lastBounds params.Bounds

	// Rendering (nil when headless)
	camera           *camera.Camera
	particleRenderer *renderer.ParticleRenderer

	// Telemetry
	perfCollector *telemetry.PerfCollector
	collector     *telemetry.Collector
	outputManager *telemetry.OutputManager
	statsCallback func(telemetry.FrameStats)
	logStats      bool

	// State
	paused         bool
	stepsPerUpdate int
	screenWidth    float32
	screenHeight   float32
}

// NewGameWithOptions seeds the particle set from the configured parameters
// and builds the pipeline. The graphical parts are created only when
// opts.Headless is false; the raylib window must already exist then.
func NewGameWithOptions(opts Options) (*Game, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, fmt.Errorf("game: no config")
	}
	store := opts.Store
	if store == nil {
		store = params.NewStore(cfg.Parameters)
	}
	initial := store.Snapshot()

	steps := opts.StepsPerUpdate
	if steps < 1 {
		steps = 1
	}

	g := &Game{
		cfg:            cfg,
		store:          store,
		hub:            opts.Hub,
		pool:           workers.New(cfg.Simulation.Workers),
		set:            particles.New(initial, cfg.Simulation.Dimensions, cfg.Simulation.LayoutMargin),
		snapshot:       initial,
		lastBounds:     initial.Bounds,
		perfCollector:  telemetry.NewPerfCollector(cfg.Telemetry.PerfWindowFrames),
		collector:      telemetry.NewCollector(cfg.Telemetry.StatsWindowFrames),
		statsCallback:  opts.StatsCallback,
		logStats:       opts.LogStats,
		stepsPerUpdate: steps,
		screenWidth:    cfg.Derived.ScreenW32,
		screenHeight:   cfg.Derived.ScreenH32,
	}

	var sorter grid.NeighborSort
	if cfg.Simulation.Sorter == config.SorterSequential {
		sorter = &grid.RadixSort{}
	}
	var colorer func(float64) particles.Color
	if cfg.Render.ColorMode == config.ColorSpeed {
		maxSpeed := cfg.Render.MaxSpeed
		colorer = func(speed float64) particles.Color { return particles.SpeedColor(speed, maxSpeed) }
	}
	g.pipeline = sph.New(g.set, sph.Options{
		Dims:      cfg.Simulation.Dimensions,
		Pool:      g.pool,
		Sorter:    sorter,
		TableSize: cfg.Simulation.TableSize,
		Timer:     g.perfCollector,
		Colorer:   colorer,
	})
	g.instances = g.set.Instances(g.instances)

	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = cfg.Telemetry.OutputDir
	}
	om, err := telemetry.NewOutputManager(outputDir)
	if err != nil {
		g.pool.Close()
		return nil, err
	}
	g.outputManager = om
	if err := om.WriteConfig(cfg); err != nil {
		slog.Error("failed to write config", "error", err)
	}

	if !opts.Headless {
		g.camera = camera.New(g.screenWidth, g.screenHeight, initial.Bounds)
		g.particleRenderer = renderer.NewParticleRenderer(cfg.Render.CircleSegments)
	}

	slog.Info("simulation ready",
		"particles", g.set.Len(),
		"dimensions", g.pipeline.Dims(),
		"workers", g.pool.Workers(),
		"sorter", cfg.Simulation.Sorter,
	)
	for _, w := range initial.Warnings() {
		slog.Warn("parameters", "warning", w)
	}
	return g, nil
}

// Update handles input and advances the simulation unless paused.
func (g *Game) Update(ctx context.Context) error {
	g.handleInput()
	if g.paused {
		return nil
	}
	for i := 0; i < g.stepsPerUpdate; i++ {
		if err := g.step(ctx); err != nil {
			return err
		}
	}
	return nil
}

// UpdateHeadless advances the simulation without input or rendering.
func (g *Game) UpdateHeadless(ctx context.Context) error {
	for i := 0; i < g.stepsPerUpdate; i++ {
		if err := g.step(ctx); err != nil {
			return err
		}
	}
	return nil
}

// step runs one frame against the latest parameter snapshot.
func (g *Game) step(ctx context.Context) error {
	snap, version := g.store.SnapshotVersion()
	if version != g.version {
		slog.Debug("parameters updated", "version", version)
	}

	report, err := g.pipeline.Step(ctx, snap)
	if err != nil {
		return fmt.Errorf("frame %d: %w", g.pipeline.Frame()+1, err)
	}
	g.snapshot, g.version, g.report = snap, version, report

	g.collector.Record(report, float64(snap.TimeScale))
	g.instances = g.set.Instances(g.instances)

	if snap.Bounds != g.lastBounds {
		g.lastBounds = snap.Bounds
		if g.camera != nil {
			g.camera.SetBounds(snap.Bounds)
		}
	}
	if g.hub != nil {
		g.hub.Publish(report.Frame, snap.Bounds, g.instances)
	}

	g.flushTelemetry()
	return nil
}

// Frame returns the number of committed frames.
func (g *Game) Frame() uint64 {
	return g.pipeline.Frame()
}

// Set returns the simulated particle set.
func (g *Game) Set() *particles.Set {
	return g.set
}

// Unload stops the workers and closes telemetry output.
func (g *Game) Unload() {
	g.pool.Close()
	if err := g.outputManager.Close(); err != nil {
		slog.Error("failed to close output", "error", err)
	}
}
