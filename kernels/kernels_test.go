package kernels

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/integrate/quad"
	"gonum.org/v1/gonum/spatial/r3"
)

// integrateRadial integrates W over a disc (2D) or ball (3D) of radius h.
func integrateRadial(k Kernel, h float64, dims int) float64 {
	f := func(r float64) float64 {
		if dims == 2 {
			return 2 * math.Pi * r * k.Weight(r, h)
		}
		return 4 * math.Pi * r * r * k.Weight(r, h)
	}
	return quad.Fixed(f, 0, h, 32, nil, 0)
}

func TestNormalisation(t *testing.T) {
	tests := []struct {
		name string
		k    Kernel
		dims int
	}{
		{"poly6 3d", Poly6{Dims: 3}, 3},
		{"poly6 2d", Poly6{Dims: 2}, 2},
		{"spiky 3d", Spiky{Dims: 3}, 3},
		{"spiky 2d", Spiky{Dims: 2}, 2},
	}

	for _, tt := range tests {
		for _, h := range []float64{0.3, 0.6, 1, 2.5} {
			t.Run(tt.name, func(t *testing.T) {
				got := integrateRadial(tt.k, h, tt.dims)
				assert.InDelta(t, 1.0, got, 1e-9, "h=%v", h)
			})
		}
	}
}

func TestCompactSupport(t *testing.T) {
	all := []Kernel{
		Poly6{Dims: 3}, Poly6{Dims: 2},
		Spiky{Dims: 3}, Spiky{Dims: 2},
		ViscosityLaplacian{Dims: 3}, ViscosityLaplacian{Dims: 2},
		Cohesion{Dims: 3}, Cohesion{Dims: 2},
		Adhesion{},
	}
	const h = 0.6

	for _, k := range all {
		assert.Zero(t, k.Weight(h, h), "%T at r=h", k)
		assert.Zero(t, k.Weight(h*1.5, h), "%T beyond h", k)
		assert.Zero(t, k.Weight(0.1, 0), "%T with h=0", k)
		assert.Zero(t, k.Weight(0.1, -1), "%T with h<0", k)
		assert.Zero(t, k.Slope(h*2, h), "%T slope beyond h", k)

		// continuous approaching h
		assert.InDelta(t, 0, k.Weight(h*(1-1e-12), h), 1e-3, "%T just inside h", k)
	}
}

func TestNonNegative(t *testing.T) {
	all := []Kernel{
		Poly6{Dims: 3}, Poly6{Dims: 2},
		Spiky{Dims: 3}, Spiky{Dims: 2},
		ViscosityLaplacian{Dims: 3}, ViscosityLaplacian{Dims: 2},
		Adhesion{},
	}
	const h = 0.6
	for _, k := range all {
		for i := 0; i <= 100; i++ {
			r := h * float64(i) / 100
			if w := k.Weight(r, h); w < 0 {
				t.Fatalf("%T: W(%v) = %v < 0", k, r, w)
			}
		}
	}
}

func TestSlopeMatchesFiniteDifference(t *testing.T) {
	all := []Kernel{
		Poly6{Dims: 3}, Poly6{Dims: 2},
		Spiky{Dims: 3}, Spiky{Dims: 2},
		ViscosityLaplacian{Dims: 3},
		Cohesion{Dims: 3}, Cohesion{Dims: 2},
		Adhesion{},
	}
	const h = 1.0
	const eps = 1e-6

	for _, k := range all {
		for _, r := range []float64{0.1, 0.35, 0.6, 0.8, 0.95} {
			fd := (k.Weight(r+eps, h) - k.Weight(r-eps, h)) / (2 * eps)
			got := k.Slope(r, h)
			tol := 1e-4 * math.Max(1, math.Abs(fd))
			if math.Abs(got-fd) > tol {
				t.Errorf("%T at r=%v: slope %v, finite difference %v", k, r, got, fd)
			}
		}
	}
}

func TestCohesionContinuousAtHalf(t *testing.T) {
	k := Cohesion{Dims: 3}
	const h = 0.8
	below := k.Weight(h/2-1e-9, h)
	above := k.Weight(h/2+1e-9, h)
	assert.InDelta(t, above, below, 1e-6)
	assert.Less(t, k.Weight(0.01, h), 0.0, "short range should repel")
}

func TestAdhesionSupport(t *testing.T) {
	k := Adhesion{}
	const h = 1.0
	assert.Zero(t, k.Weight(0.5, h))
	assert.Zero(t, k.Weight(0.2, h))
	assert.Greater(t, k.Weight(0.75, h), 0.0)
}

func TestGradient(t *testing.T) {
	k := Spiky{Dims: 3}
	const h = 1.0

	assert.Equal(t, r3.Vec{}, Gradient(k, r3.Vec{}, 0, h), "coincident points")

	d := r3.Vec{X: 0.3, Y: 0.4}
	r := r3.Norm(d)
	g := Gradient(k, d, r, h)
	// points along d scaled by the slope
	assert.InDelta(t, math.Abs(k.Slope(r, h)), r3.Norm(g), 1e-12)
	assert.InDelta(t, -1.0, r3.Dot(r3.Unit(g), r3.Unit(d)), 1e-12)

	assert.Equal(t, r3.Vec{}, Gradient(k, r3.Vec{X: 2}, 2, h), "outside support")
}

func TestNewSet(t *testing.T) {
	s2 := NewSet(2)
	s3 := NewSet(3)
	assert.Equal(t, Poly6{Dims: 2}, s2.Density)
	assert.Equal(t, Spiky{Dims: 3}, s3.Pressure)
	assert.NotEqual(t, s2.Density.Weight(0, 1), s3.Density.Weight(0, 1))
}

func BenchmarkPoly6(b *testing.B) {
	k := Poly6{Dims: 3}
	var sum float64
	for i := 0; i < b.N; i++ {
		sum += k.Weight(float64(i%100)/100, 1)
	}
	_ = sum
}
