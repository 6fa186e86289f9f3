package particles

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/fluid/params"
)

func TestNewLayout2D(t *testing.T) {
	p := params.Default()
	p.ParticleCount = 10
	s := New(p, 2, DefaultMargin)
	require.Equal(t, 10, s.Len())

	spacing := 2*float64(p.ParticleRadius) + DefaultMargin
	// 4x4 slots, third row holds 2 particles and the top row is empty
	assert.InDelta(t, spacing, s.Positions[1].X-s.Positions[0].X, 1e-9)
	assert.InDelta(t, spacing, s.Positions[4].Y-s.Positions[0].Y, 1e-9)
	assert.InDelta(t, s.Positions[0].X, s.Positions[8].X, 1e-9)

	// the whole 4x4 block is centred, empty slots included
	center := p.Bounds.Center()
	assert.InDelta(t, center[0], s.Positions[0].X+1.5*spacing, 1e-9)
	assert.InDelta(t, center[1], s.Positions[0].Y+1.5*spacing, 1e-9)

	for i := range s.Positions {
		assert.Zero(t, s.Positions[i].Z)
		assert.Equal(t, r3.Vec{}, s.Velocities[i])
		assert.Equal(t, DefaultColor, s.Colors[i])
	}
}

func TestNewLayoutDefaultCount(t *testing.T) {
	p := params.Default()
	s := New(p, 2, DefaultMargin)
	require.Equal(t, int(p.ParticleCount), s.Len())
	for i, pos := range s.Positions {
		if !p.Bounds.Contains([3]float64{pos.X, pos.Y, pos.Z}, 2) {
			t.Fatalf("particle %d at %v outside bounds", i, pos)
		}
	}
}

func TestNewLayoutClampsOversizedBlock(t *testing.T) {
	p := params.Default()
	p.Bounds = params.Bounds{Min: [3]float32{0, 0, 0}, Max: [3]float32{20, 20, 20}}
	p.ParticleCount = 400
	for _, dims := range []int{2, 3} {
		s := New(p, dims, DefaultMargin)
		for i, pos := range s.Positions {
			if !p.Bounds.Contains([3]float64{pos.X, pos.Y, pos.Z}, dims) {
				t.Fatalf("dims %d: particle %d at %v outside bounds", dims, i, pos)
			}
		}
	}
}

func TestNewLayout3D(t *testing.T) {
	p := params.Default()
	p.Bounds = params.Bounds{Min: [3]float32{0, 0, 0}, Max: [3]float32{100, 100, 100}}
	p.ParticleCount = 27
	s := New(p, 3, DefaultMargin)

	spacing := 2*float64(p.ParticleRadius) + DefaultMargin
	assert.InDelta(t, spacing, s.Positions[9].Z-s.Positions[0].Z, 1e-9)
	assert.InDelta(t, 50, s.Positions[13].X, 1e-9, "middle particle sits at the centre")
	assert.InDelta(t, 50, s.Positions[13].Y, 1e-9)
	assert.InDelta(t, 50, s.Positions[13].Z, 1e-9)
}

func TestNewLayout3DPartialCube(t *testing.T) {
	p := params.Default()
	p.Bounds = params.Bounds{Min: [3]float32{0, 0, 0}, Max: [3]float32{100, 100, 100}}
	p.ParticleCount = 10
	s := New(p, 3, DefaultMargin)

	// 3x3x3 slots: one full layer and one particle in the second
	spacing := 2*float64(p.ParticleRadius) + DefaultMargin
	assert.InDelta(t, spacing, s.Positions[9].Z-s.Positions[0].Z, 1e-9)
	assert.InDelta(t, 50, s.Positions[0].X+spacing, 1e-9)
	assert.InDelta(t, 50, s.Positions[0].Z+spacing, 1e-9, "centred as a full cube")
}

func TestInstances(t *testing.T) {
	s := &Set{
		Positions:  []r3.Vec{{X: 1, Y: 2, Z: 3}, {X: 4, Y: 5}},
		Velocities: make([]r3.Vec, 2),
		Colors:     []Color{DefaultColor, {1, 0, 0, 1}},
	}
	buf := make([]Instance, 5)
	got := s.Instances(buf)
	require.Len(t, got, 2)
	assert.Equal(t, [3]float32{1, 2, 3}, got[0].Position)
	assert.Equal(t, [4]float32{1, 0, 0, 1}, got[1].Color)
}

func TestCircleMesh(t *testing.T) {
	m := CircleMesh(2, 32)
	require.Len(t, m.Vertices, 34)
	require.Len(t, m.Indices, 96)

	assert.Equal(t, [3]float32{}, m.Vertices[0].Position)
	for _, v := range m.Vertices[1:] {
		r := math.Hypot(float64(v.Position[0]), float64(v.Position[1]))
		assert.InDelta(t, 2, r, 1e-5)
		assert.Equal(t, [3]float32{0, 0, 1}, v.Normal)
	}
	// loop closes on the first rim vertex
	assert.InDelta(t, m.Vertices[1].Position[0], m.Vertices[33].Position[0], 1e-5)
	assert.InDelta(t, m.Vertices[1].Position[1], m.Vertices[33].Position[1], 1e-5)

	for _, idx := range m.Indices {
		assert.Less(t, int(idx), len(m.Vertices))
	}
	assert.Equal(t, []uint16{32, 33, 0}, m.Indices[93:])
}

func TestSpeedColor(t *testing.T) {
	tests := []struct {
		name     string
		speed    float64
		maxSpeed float64
		want     Color
	}{
		{"at rest", 0, 10, speedStops[0]},
		{"half", 5, 10, DefaultColor},
		{"max", 10, 10, speedStops[2]},
		{"above max", 50, 10, speedStops[2]},
		{"no max", 5, 0, speedStops[0]},
		{"nan", math.NaN(), 10, speedStops[0]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SpeedColor(tt.speed, tt.maxSpeed)
			for k := range got {
				assert.InDelta(t, tt.want[k], got[k], 1e-6)
			}
		})
	}
}
