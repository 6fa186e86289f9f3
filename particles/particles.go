// Package particles holds the particle population as index-aligned arrays
// and builds the data the renderer consumes.
package particles

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/fluid/params"
)

// DefaultMargin is the gap left between neighbouring particles in the
// initial layout, in world units.
const DefaultMargin = 1.0

// Color is an RGBA colour with components in [0,1].
type Color [4]float32

// DefaultColor is the uniform particle colour.
var DefaultColor = Color{0, 0.71, 0.93, 1}

// Set is the particle population. Index i in every slice refers to the same
// particle for the lifetime of the simulation. Positions are in world
// units, velocities in scene units per unit time.
type Set struct {
	Positions  []r3.Vec
	Velocities []r3.Vec
	Colors     []Color
}

// New lays out p.ParticleCount particles at rest in a square (2D) or cube
// (3D) block centred in the bounds. Neighbours are 2*radius+margin apart.
// Particles that would fall outside the bounds are clamped inside.
func New(p params.Parameters, dims int, margin float64) *Set {
	n := int(p.ParticleCount)
	s := &Set{
		Positions:  make([]r3.Vec, n),
		Velocities: make([]r3.Vec, n),
		Colors:     make([]Color, n),
	}
	if n == 0 {
		return s
	}

	spacing := 2*float64(p.ParticleRadius) + margin
	center := p.Bounds.Center()

	// The block is always ceil(sqrt(n)) (or ceil(cbrt(n))) slots on every
	// side and is centred as a whole; slots past n stay empty.
	var cols, rows, layers int
	if dims == 2 {
		cols = int(math.Ceil(math.Sqrt(float64(n))))
		rows = cols
		layers = 1
	} else {
		cols = int(math.Ceil(math.Cbrt(float64(n))))
		// Cbrt can land just above an exact cube root.
		if (cols-1)*(cols-1)*(cols-1) >= n {
			cols--
		}
		rows = cols
		layers = cols
	}

	origin := r3.Vec{
		X: center[0] - float64(cols-1)*spacing/2,
		Y: center[1] - float64(rows-1)*spacing/2,
	}
	if dims != 2 {
		origin.Z = center[2] - float64(layers-1)*spacing/2
	}

	for i := 0; i < n; i++ {
		x := i % cols
		y := (i / cols) % rows
		z := i / (cols * rows)

		pos := r3.Add(origin, r3.Vec{X: float64(x) * spacing, Y: float64(y) * spacing})
		if dims != 2 {
			pos.Z += float64(z) * spacing
		}
		s.Positions[i] = clampInside(pos, p.Bounds, dims)
		s.Colors[i] = DefaultColor
	}
	return s
}

func clampInside(v r3.Vec, b params.Bounds, dims int) r3.Vec {
	v.X = clamp(v.X, float64(b.Min[0]), float64(b.Max[0]))
	v.Y = clamp(v.Y, float64(b.Min[1]), float64(b.Max[1]))
	if dims == 2 {
		v.Z = 0
	} else {
		v.Z = clamp(v.Z, float64(b.Min[2]), float64(b.Max[2]))
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Len returns the number of particles.
func (s *Set) Len() int {
	return len(s.Positions)
}

// Instance is the per-particle data handed to the renderer.
type Instance struct {
	Position [3]float32
	Color    [4]float32
}

// Instances appends one instance per particle to dst[:0] and returns it.
func (s *Set) Instances(dst []Instance) []Instance {
	dst = dst[:0]
	for i, p := range s.Positions {
		dst = append(dst, Instance{
			Position: [3]float32{float32(p.X), float32(p.Y), float32(p.Z)},
			Color:    s.Colors[i],
		})
	}
	return dst
}

// Vertex is a mesh vertex in particle-local coordinates.
type Vertex struct {
	Position [3]float32 `json:"position"`
	Normal   [3]float32 `json:"normal"`
}

// Mesh is an indexed triangle mesh drawn once per particle instance.
type Mesh struct {
	Vertices []Vertex `json:"vertices"`
	Indices  []uint16 `json:"indices"`
}

// CircleMesh returns a triangle fan approximating a disc: the centre
// vertex, then segments+1 rim vertices with the last one closing the loop.
func CircleMesh(radius float32, segments int) Mesh {
	if segments < 3 {
		segments = 3
	}
	normal := [3]float32{0, 0, 1}
	m := Mesh{
		Vertices: make([]Vertex, 0, segments+2),
		Indices:  make([]uint16, 0, 3*segments),
	}
	m.Vertices = append(m.Vertices, Vertex{Normal: normal})
	for s := 0; s <= segments; s++ {
		theta := float64(s) / float64(segments) * 2 * math.Pi
		m.Vertices = append(m.Vertices, Vertex{
			Position: [3]float32{radius * float32(math.Cos(theta)), radius * float32(math.Sin(theta)), 0},
			Normal:   normal,
		})
	}
	for i := 1; i <= segments; i++ {
		m.Indices = append(m.Indices, uint16(i), uint16(i+1), 0)
	}
	return m
}

var speedStops = []Color{
	{0.05, 0.25, 0.75, 1},
	DefaultColor,
	{0.9, 0.97, 1, 1},
}

// SpeedColor maps a speed onto a blue-to-white gradient. Speeds at or
// above maxSpeed get the last colour.
func SpeedColor(speed, maxSpeed float64) Color {
	t := 0.0
	if maxSpeed > 0 && !math.IsNaN(speed) {
		t = clamp(speed/maxSpeed, 0, 1)
	}
	seg := t * float64(len(speedStops)-1)
	i := int(seg)
	if i >= len(speedStops)-1 {
		return speedStops[len(speedStops)-1]
	}
	f := float32(seg - float64(i))
	a, b := speedStops[i], speedStops[i+1]
	var c Color
	for k := range c {
		c[k] = a[k] + (b[k]-a[k])*f
	}
	return c
}
