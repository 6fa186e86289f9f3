package game

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/fluid/config"
	"github.com/pthm-cable/fluid/params"
	"github.com/pthm-cable/fluid/sph"
	"github.com/pthm-cable/fluid/telemetry"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Simulation.Workers = 2
	cfg.Parameters.ParticleCount = 64
	cfg.Parameters.Bounds = params.Bounds{Max: [3]float32{100, 100, 1}}
	cfg.Parameters.SceneScale = 0.1
	cfg.Parameters.GridSize = 1
	cfg.Telemetry.StatsWindowFrames = 5
	return cfg
}

func newHeadless(t *testing.T, cfg *config.Config, store *params.Store, outputDir string) *Game {
	t.Helper()
	g, err := NewGameWithOptions(Options{
		Config:    cfg,
		Store:     store,
		Headless:  true,
		OutputDir: outputDir,
	})
	require.NoError(t, err)
	t.Cleanup(g.Unload)
	return g
}

func TestHeadlessRunWritesTelemetry(t *testing.T) {
	dir := t.TempDir()
	g := newHeadless(t, testConfig(t), nil, dir)

	for i := 0; i < 12; i++ {
		require.NoError(t, g.UpdateHeadless(context.Background()))
	}
	assert.Equal(t, uint64(12), g.Frame())
	g.Unload()

	frames, err := os.ReadFile(filepath.Join(dir, "frames.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(frames)), "\n")
	require.Len(t, lines, 3, "header plus two full windows")
	assert.True(t, strings.HasPrefix(lines[0], "window_end,"))
	assert.True(t, strings.HasPrefix(lines[1], "5,"))
	assert.True(t, strings.HasPrefix(lines[2], "10,"))

	perf, err := os.ReadFile(filepath.Join(dir, "perf.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(perf), "forces_pct")

	_, err = os.Stat(filepath.Join(dir, "config.yaml"))
	assert.NoError(t, err)
}

func TestStepUsesLatestParameters(t *testing.T) {
	cfg := testConfig(t)
	cfg.Parameters.ParticleCount = 1
	cfg.Parameters.Gravity = [3]float32{}
	store := params.NewStore(cfg.Parameters)
	g := newHeadless(t, cfg, store, "")

	require.NoError(t, g.UpdateHeadless(context.Background()))
	assert.Equal(t, r3.Vec{}, g.Set().Velocities[0], "no gravity, no motion")

	p := store.Snapshot()
	p.Gravity = [3]float32{0, -10, 0}
	require.NoError(t, store.Write(p))

	require.NoError(t, g.UpdateHeadless(context.Background()))
	assert.Less(t, g.Set().Velocities[0].Y, 0.0)
	assert.Equal(t, uint64(1), g.version)
}

func TestCancelledStepLeavesSetUntouched(t *testing.T) {
	g := newHeadless(t, testConfig(t), nil, "")
	before := append([]r3.Vec(nil), g.Set().Positions...)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := g.UpdateHeadless(ctx)
	require.ErrorIs(t, err, sph.ErrFrameAbandoned)
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, before, g.Set().Positions)
	assert.Zero(t, g.Frame())
}

func TestSequentialSorterMatchesParallel(t *testing.T) {
	cfg := testConfig(t)
	par := newHeadless(t, cfg, nil, "")

	seqCfg := testConfig(t)
	seqCfg.Simulation.Sorter = config.SorterSequential
	seq := newHeadless(t, seqCfg, nil, "")

	for i := 0; i < 5; i++ {
		require.NoError(t, par.UpdateHeadless(context.Background()))
		require.NoError(t, seq.UpdateHeadless(context.Background()))
	}
	assert.Equal(t, par.Set().Positions, seq.Set().Positions)
}

func TestNewGameRequiresConfig(t *testing.T) {
	_, err := NewGameWithOptions(Options{Headless: true})
	assert.Error(t, err)
}

func TestStatsCallbackReceivesWindows(t *testing.T) {
	var windows []telemetry.FrameStats
	g, err := NewGameWithOptions(Options{
		Config:   testConfig(t),
		Headless: true,
		StatsCallback: func(s telemetry.FrameStats) {
			windows = append(windows, s)
		},
	})
	require.NoError(t, err)
	defer g.Unload()

	for i := 0; i < 10; i++ {
		require.NoError(t, g.UpdateHeadless(context.Background()))
	}
	require.Len(t, windows, 2)
	assert.Equal(t, uint64(5), windows[0].WindowEndFrame)
	assert.Equal(t, uint64(10), windows[1].WindowEndFrame)
	assert.Equal(t, 64, windows[1].Particles)
}
