package sph

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/fluid/kernels"
	"github.com/pthm-cable/fluid/params"
	"github.com/pthm-cable/fluid/particles"
	"github.com/pthm-cable/fluid/workers"
)

// quietParams returns parameters with every force switched off and a scene
// scale of one, so world and scene units coincide.
func quietParams(n int) params.Parameters {
	p := params.Default()
	p.Bounds = params.Bounds{Min: [3]float32{0, 0, 0}, Max: [3]float32{100, 100, 1}}
	p.ParticleCount = uint32(n)
	p.SceneScale = 1
	p.Gravity = [3]float32{}
	p.Viscosity = 0
	p.CohesionCoef = 0
	p.CurvatureCoef = 0
	p.AdhesionCoef = 0
	p.PressureMultiplier = 0
	p.NearPressureMultiplier = 0
	p.VorticityIntensity = 0
	p.VelocitySmoothing = 0
	return p
}

func setOf(positions ...r3.Vec) *particles.Set {
	s := &particles.Set{
		Positions:  positions,
		Velocities: make([]r3.Vec, len(positions)),
		Colors:     make([]particles.Color, len(positions)),
	}
	return s
}

func smallBlock(t testing.TB, n, dims int) (*particles.Set, params.Parameters) {
	t.Helper()
	p := params.Default()
	p.ParticleCount = uint32(n)
	return particles.New(p, dims, particles.DefaultMargin), p
}

func TestStagesValidate(t *testing.T) {
	require.NoError(t, ValidateStages(Stages(), Inputs))

	names := make([]string, 0, len(stages))
	for _, s := range Stages() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{
		StagePredict, StageHash, StageSort, StageCellStarts, StageDensity,
		StageNormals, StageForces, StageIntegrate, StageCommit,
	}, names)
}

func TestValidateStagesDetectsMisorder(t *testing.T) {
	list := Stages()
	list[4], list[5] = list[5], list[4] // normals before density
	err := ValidateStages(list, Inputs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "density")
}

func TestDensityNonNegative(t *testing.T) {
	for _, dims := range []int{2, 3} {
		set, p := smallBlock(t, 900, dims)
		pl := New(set, Options{Dims: dims})
		for frame := 0; frame < 5; frame++ {
			r, err := pl.Step(context.Background(), p)
			require.NoError(t, err)
			for i := range r.Density {
				if r.Density[i] < 0 || r.NearDensity[i] < 0 {
					t.Fatalf("dims %d frame %d: particle %d density %v near %v",
						dims, frame, i, r.Density[i], r.NearDensity[i])
				}
			}
			require.NoError(t, pl.Index().Validate())
		}
	}
}

func TestPositionsStayInBounds(t *testing.T) {
	pool := workers.New(4)
	defer pool.Close()

	set, p := smallBlock(t, 1600, 2)
	p.Gravity = [3]float32{0, -400, 0}
	// fling everything outward
	rng := rand.New(rand.NewSource(3))
	for i := range set.Velocities {
		set.Velocities[i] = r3.Vec{X: rng.NormFloat64() * 50, Y: rng.NormFloat64() * 50}
	}

	pl := New(set, Options{Dims: 2, Pool: pool})
	for frame := 0; frame < 60; frame++ {
		_, err := pl.Step(context.Background(), p)
		require.NoError(t, err)
		for i, x := range set.Positions {
			if !p.Bounds.Contains([3]float64{x.X, x.Y, x.Z}, 2) || x.Z != 0 {
				t.Fatalf("frame %d: particle %d at %v outside bounds", frame, i, x)
			}
		}
	}
}

func TestFourParticleSquare(t *testing.T) {
	p := quietParams(4)
	p.TimeScale = 0
	h := float64(p.DensityKernelRadius)
	side := h / 3

	c := r3.Vec{X: 50, Y: 50}
	set := setOf(
		r3.Add(c, r3.Vec{X: 0, Y: 0}),
		r3.Add(c, r3.Vec{X: side, Y: 0}),
		r3.Add(c, r3.Vec{X: 0, Y: side}),
		r3.Add(c, r3.Vec{X: side, Y: side}),
	)
	r, err := New(set, Options{Dims: 2}).Step(context.Background(), p)
	require.NoError(t, err)

	lone := quietParams(1)
	lone.TimeScale = 0
	single, err := New(setOf(c), Options{Dims: 2}).Step(context.Background(), lone)
	require.NoError(t, err)
	selfOnly := single.Density[0]
	require.Greater(t, selfOnly, 0.0)

	for i := 1; i < 4; i++ {
		assert.InDelta(t, r.Density[0], r.Density[i], 1e-9)
		assert.InDelta(t, r.NearDensity[0], r.NearDensity[i], 1e-9)
	}
	assert.Greater(t, r.Density[0], selfOnly)
	assert.Equal(t, 3, r.MaxNeighbours)
	assert.InDelta(t, 3.0, r.MeanNeighbours, 1e-12)
}

func TestBelowBoundaryParticleReflects(t *testing.T) {
	p := quietParams(1)
	p.Bounds = params.Bounds{Min: [3]float32{0, 10, 0}, Max: [3]float32{100, 100, 1}}
	p.CollisionDamping = 0.9

	set := setOf(r3.Vec{X: 50, Y: 9})
	set.Velocities[0] = r3.Vec{Y: -5}

	r, err := New(set, Options{Dims: 2}).Step(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, 10.0, set.Positions[0].Y)
	assert.InDelta(t, 5*float64(p.CollisionDamping), set.Velocities[0].Y, 1e-12)
	assert.Equal(t, 50.0, set.Positions[0].X)
	assert.Equal(t, 1, r.Clamped)
}

func TestZeroTimeStepIsIdempotent(t *testing.T) {
	set, p := smallBlock(t, 400, 2)
	p.TimeScale = 0
	before := append([]r3.Vec(nil), set.Positions...)

	pl := New(set, Options{Dims: 2})
	for i := 0; i < 2; i++ {
		_, err := pl.Step(context.Background(), p)
		require.NoError(t, err)
	}
	assert.Equal(t, before, set.Positions)
	for i, v := range set.Velocities {
		if v != (r3.Vec{}) {
			t.Fatalf("particle %d gained velocity %v", i, v)
		}
	}
}

func kineticEnergy(s *particles.Set, m float64) float64 {
	var e float64
	for _, v := range s.Velocities {
		e += 0.5 * m * r3.Dot(v, v)
	}
	return e
}

func TestNoEnergyInjectionWithoutForces(t *testing.T) {
	set, _ := smallBlock(t, 400, 2)
	p := quietParams(400)
	p.Bounds = params.Default().Bounds
	p.SceneScale = params.Default().SceneScale

	rng := rand.New(rand.NewSource(7))
	for i := range set.Velocities {
		set.Velocities[i] = r3.Vec{X: rng.NormFloat64(), Y: rng.NormFloat64()}
	}

	pl := New(set, Options{Dims: 2})
	m := float64(p.ParticleMass)
	prev := kineticEnergy(set, m)
	for frame := 0; frame < 30; frame++ {
		_, err := pl.Step(context.Background(), p)
		require.NoError(t, err)
		e := kineticEnergy(set, m)
		if e > prev*(1+1e-9) {
			t.Fatalf("frame %d: kinetic energy rose from %v to %v", frame, prev, e)
		}
		prev = e
	}
}

func TestCancelledFrameLeavesSetUntouched(t *testing.T) {
	set, p := smallBlock(t, 400, 2)
	before := append([]r3.Vec(nil), set.Positions...)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pl := New(set, Options{Dims: 2})
	_, err := pl.Step(ctx, p)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFrameAbandoned))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, before, set.Positions)
	assert.Equal(t, uint64(0), pl.Frame())
}

// cancelAt cancels a context when a given stage starts.
type cancelAt struct {
	stage  string
	cancel context.CancelFunc
	phases []string
}

func (c *cancelAt) StartTick() {}
func (c *cancelAt) EndTick()   {}
func (c *cancelAt) StartPhase(name string) {
	c.phases = append(c.phases, name)
	if name == c.stage {
		c.cancel()
	}
}

func TestCancelledBeforeCommit(t *testing.T) {
	set, p := smallBlock(t, 400, 2)
	for i := range set.Velocities {
		set.Velocities[i] = r3.Vec{X: 1}
	}
	before := append([]r3.Vec(nil), set.Positions...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	timer := &cancelAt{stage: StageIntegrate, cancel: cancel}

	pl := New(set, Options{Dims: 2, Timer: timer})
	_, err := pl.Step(ctx, p)
	require.ErrorIs(t, err, ErrFrameAbandoned)
	assert.Equal(t, before, set.Positions, "integrate ran but nothing was committed")
	assert.Equal(t, StageIntegrate, timer.phases[len(timer.phases)-1])

	// the next frame retries from the same state
	_, err = pl.Step(context.Background(), p)
	require.NoError(t, err)
	assert.NotEqual(t, before, set.Positions)
	assert.Equal(t, uint64(1), pl.Frame())
}

func TestInvalidSnapshotRejected(t *testing.T) {
	set, p := smallBlock(t, 16, 2)
	p.GridSize = 0
	_, err := New(set, Options{Dims: 2}).Step(context.Background(), p)
	assert.Error(t, err)
}

func TestParallelMatchesSequential(t *testing.T) {
	pool := workers.New(4)
	defer pool.Close()

	seqSet, p := smallBlock(t, 2500, 2)
	parSet, _ := smallBlock(t, 2500, 2)

	seq := New(seqSet, Options{Dims: 2})
	par := New(parSet, Options{Dims: 2, Pool: pool})
	for frame := 0; frame < 5; frame++ {
		_, err := seq.Step(context.Background(), p)
		require.NoError(t, err)
		_, err = par.Step(context.Background(), p)
		require.NoError(t, err)
	}
	assert.Equal(t, seqSet.Positions, parSet.Positions)
	assert.Equal(t, seqSet.Velocities, parSet.Velocities)
}

func TestNonFiniteParticleIsContained(t *testing.T) {
	set, p := smallBlock(t, 400, 2)
	set.Positions[17] = r3.Vec{X: math.NaN(), Y: math.NaN()}
	set.Velocities[42] = r3.Vec{X: math.Inf(1)}

	r, err := New(set, Options{Dims: 2}).Step(context.Background(), p)
	require.NoError(t, err)
	assert.Positive(t, r.NonFinite)

	for i := range set.Positions {
		if !finite(set.Positions[i]) || !finite(set.Velocities[i]) {
			t.Fatalf("particle %d not finite: %v %v", i, set.Positions[i], set.Velocities[i])
		}
		x := set.Positions[i]
		if !p.Bounds.Contains([3]float64{x.X, x.Y, x.Z}, 2) {
			t.Fatalf("particle %d at %v outside bounds", i, x)
		}
	}
}

func TestGravityAcceleratesIsolatedParticle(t *testing.T) {
	p := quietParams(1)
	p.Gravity = [3]float32{0, -10, 0}
	p.TimeScale = 0.01

	set := setOf(r3.Vec{X: 50, Y: 50})
	_, err := New(set, Options{Dims: 2}).Step(context.Background(), p)
	require.NoError(t, err)
	dt := float64(p.TimeScale)
	assert.InDelta(t, -10*dt, set.Velocities[0].Y, 1e-12)
	assert.InDelta(t, 50-10*dt*dt, set.Positions[0].Y, 1e-12)
	// float32 parameters, so only close to the decimal values
	assert.InDelta(t, -0.1, set.Velocities[0].Y, 1e-6)
}

func TestSpeedColorer(t *testing.T) {
	set, p := smallBlock(t, 64, 2)
	for i := range set.Velocities {
		set.Velocities[i] = r3.Vec{X: 3}
	}
	colorer := func(speed float64) particles.Color { return particles.SpeedColor(speed, 3) }
	_, err := New(set, Options{Dims: 2, Colorer: colorer}).Step(context.Background(), p)
	require.NoError(t, err)
	assert.NotEqual(t, particles.DefaultColor, set.Colors[0])
}

func BenchmarkStep(b *testing.B) {
	pool := workers.New(0)
	defer pool.Close()
	set, p := smallBlock(b, 16384, 2)
	pl := New(set, Options{Dims: 2, Pool: pool})
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := pl.Step(ctx, p); err != nil {
			b.Fatal(err)
		}
	}
}

func TestIsolatedParticleSelfDensity(t *testing.T) {
	for _, dims := range []int{2, 3} {
		p := quietParams(1)
		set := setOf(r3.Vec{X: 50, Y: 50})
		r, err := New(set, Options{Dims: dims}).Step(context.Background(), p)
		require.NoError(t, err)

		ks := kernels.NewSet(dims)
		m := float64(p.ParticleMass)
		assert.InDelta(t, m*ks.Density.Weight(0, float64(p.DensityKernelRadius)), r.Density[0], 1e-9, "dims %d", dims)
		assert.InDelta(t, m*ks.Near.Weight(0, float64(p.NearPressureKernelRadius)), r.NearDensity[0], 1e-9, "dims %d", dims)
		assert.Equal(t, 0.0, r3.Norm(set.Velocities[0]), "no forces on a lone particle")
	}
}

func TestSmallTableFindsAllNeighbours(t *testing.T) {
	for _, dims := range []int{2, 3} {
		p := quietParams(3000)
		p.TimeScale = 0
		rng := rand.New(rand.NewSource(int64(dims)))
		positions := make([]r3.Vec, 3000)
		for i := range positions {
			positions[i] = r3.Vec{X: rng.Float64() * 20, Y: rng.Float64() * 20}
			if dims == 3 {
				positions[i].Z = rng.Float64()
			}
		}
		set := setOf(positions...)

		// 64 buckets force many cells to share a key
		pl := New(set, Options{Dims: dims, TableSize: 64})
		_, err := pl.Step(context.Background(), p)
		require.NoError(t, err)
		require.NoError(t, pl.Index().Validate())

		radius := float64(p.GridSize)
		for _, i := range []int{0, 17, 999, 2999} {
			found := map[int]int{}
			pl.Index().ForEachNeighbor(set.Positions[i], set.Positions, radius, func(j int, _ r3.Vec, _ float64) {
				found[j]++
			})
			for j := range set.Positions {
				inside := r3.Norm(r3.Sub(set.Positions[j], set.Positions[i])) <= radius
				if inside && found[j] != 1 {
					t.Fatalf("dims %d: particle %d sees neighbour %d %d times", dims, i, j, found[j])
				}
				if !inside && found[j] != 0 {
					t.Fatalf("dims %d: particle %d reported distant particle %d", dims, i, j)
				}
			}
		}
	}
}
