// Package kernels implements the SPH smoothing kernels. Every kernel is
// compactly supported: it is zero for r >= h and for a non-positive h.
package kernels

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Kernel is a radial smoothing function with support radius h.
type Kernel interface {
	// Weight returns W(r, h).
	Weight(r, h float64) float64
	// Slope returns dW/dr at r.
	Slope(r, h float64) float64
}

// Set bundles the kernels used by each pass of the force pipeline. Any
// member may be replaced to swap the kernel used by that pass.
type Set struct {
	Density   Kernel
	Near      Kernel
	Pressure  Kernel
	Viscosity Kernel
	Normal    Kernel
	Vorticity Kernel
	Cohesion  Kernel
	Adhesion  Kernel
}

// NewSet returns the default kernels normalised for 2 or 3 dimensions.
func NewSet(dims int) Set {
	return Set{
		Density:   Poly6{Dims: dims},
		Near:      Spiky{Dims: dims},
		Pressure:  Spiky{Dims: dims},
		Viscosity: ViscosityLaplacian{Dims: dims},
		Normal:    Poly6{Dims: dims},
		Vorticity: Spiky{Dims: dims},
		Cohesion:  Cohesion{Dims: dims},
		Adhesion:  Adhesion{},
	}
}

// Gradient returns the kernel gradient at offset d of length r:
// Slope(r,h) * d/r. Coincident points have no direction and contribute zero.
func Gradient(k Kernel, d r3.Vec, r, h float64) r3.Vec {
	if r <= 0 {
		return r3.Vec{}
	}
	return r3.Scale(k.Slope(r, h)/r, d)
}

func outside(r, h float64) bool {
	return h <= 0 || r >= h || r < 0
}

// Poly6 is the density kernel, (h²-r²)³.
type Poly6 struct{ Dims int }

func (k Poly6) norm(h float64) float64 {
	if k.Dims == 2 {
		return 4 / (math.Pi * math.Pow(h, 8))
	}
	return 315 / (64 * math.Pi * math.Pow(h, 9))
}

func (k Poly6) Weight(r, h float64) float64 {
	if outside(r, h) {
		return 0
	}
	d := h*h - r*r
	return k.norm(h) * d * d * d
}

func (k Poly6) Slope(r, h float64) float64 {
	if outside(r, h) {
		return 0
	}
	d := h*h - r*r
	return -6 * k.norm(h) * r * d * d
}

// Spiky is the pressure kernel, (h-r)³. Its gradient does not vanish at
// the centre, which keeps close particles apart.
type Spiky struct{ Dims int }

func (k Spiky) norm(h float64) float64 {
	if k.Dims == 2 {
		return 10 / (math.Pi * math.Pow(h, 5))
	}
	return 15 / (math.Pi * math.Pow(h, 6))
}

func (k Spiky) Weight(r, h float64) float64 {
	if outside(r, h) {
		return 0
	}
	d := h - r
	return k.norm(h) * d * d * d
}

func (k Spiky) Slope(r, h float64) float64 {
	if outside(r, h) {
		return 0
	}
	d := h - r
	return -3 * k.norm(h) * d * d
}

// ViscosityLaplacian is the Laplacian of the Müller viscosity kernel.
type ViscosityLaplacian struct{ Dims int }

func (k ViscosityLaplacian) norm(h float64) float64 {
	if k.Dims == 2 {
		return 40 / (math.Pi * math.Pow(h, 5))
	}
	return 45 / (math.Pi * math.Pow(h, 6))
}

func (k ViscosityLaplacian) Weight(r, h float64) float64 {
	if outside(r, h) {
		return 0
	}
	return k.norm(h) * (h - r)
}

func (k ViscosityLaplacian) Slope(r, h float64) float64 {
	if outside(r, h) {
		return 0
	}
	return -k.norm(h)
}

// Cohesion is the Akinci surface tension spline. It turns negative for
// r below roughly h/5, which makes very close pairs push apart.
type Cohesion struct{ Dims int }

func (k Cohesion) norm(h float64) float64 {
	if k.Dims == 2 {
		return 32 / (math.Pi * math.Pow(h, 8))
	}
	return 32 / (math.Pi * math.Pow(h, 9))
}

func (k Cohesion) Weight(r, h float64) float64 {
	if outside(r, h) {
		return 0
	}
	d := h - r
	s := d * d * d * r * r * r
	if 2*r > h {
		return k.norm(h) * s
	}
	h3 := h * h * h
	return k.norm(h) * (2*s - h3*h3/64)
}

func (k Cohesion) Slope(r, h float64) float64 {
	if outside(r, h) || r == 0 {
		return 0
	}
	d := h - r
	s := 3 * r * r * d * d * (h - 2*r)
	if 2*r > h {
		return k.norm(h) * s
	}
	return 2 * k.norm(h) * s
}

// Adhesion is the Akinci particle-to-wall kernel, non-zero on (h/2, h).
type Adhesion struct{}

func (Adhesion) inner(r, h float64) float64 {
	return -4*r*r/h + 6*r - 2*h
}

func (k Adhesion) Weight(r, h float64) float64 {
	if h <= 0 || r >= h || 2*r <= h {
		return 0
	}
	g := k.inner(r, h)
	if g <= 0 {
		return 0
	}
	return 0.007 / math.Pow(h, 3.25) * math.Pow(g, 0.25)
}

func (k Adhesion) Slope(r, h float64) float64 {
	if h <= 0 || r >= h || 2*r <= h {
		return 0
	}
	g := k.inner(r, h)
	if g <= 0 {
		return 0
	}
	return 0.007 / math.Pow(h, 3.25) * 0.25 * math.Pow(g, -0.75) * (-8*r/h + 6)
}
