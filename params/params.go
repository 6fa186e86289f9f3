// Package params defines the simulation parameters shared between the
// simulation and its settings collaborators.
package params

import (
	"errors"
	"fmt"
	"math"
)

// Bounds is the axis-aligned simulation volume.
type Bounds struct {
	Min [3]float32 `yaml:"min"`
	Max [3]float32 `yaml:"max"`
}

// Center returns the midpoint of the volume.
func (b Bounds) Center() [3]float64 {
	var c [3]float64
	for i := range c {
		c[i] = (float64(b.Min[i]) + float64(b.Max[i])) / 2
	}
	return c
}

// Size returns the extent of the volume along each axis.
func (b Bounds) Size() [3]float64 {
	var s [3]float64
	for i := range s {
		s[i] = float64(b.Max[i]) - float64(b.Min[i])
	}
	return s
}

// Contains reports whether p lies inside the volume on the first dims axes.
func (b Bounds) Contains(p [3]float64, dims int) bool {
	for i := 0; i < dims; i++ {
		if p[i] < float64(b.Min[i]) || p[i] > float64(b.Max[i]) {
			return false
		}
	}
	return true
}

// Parameters is the full simulation configuration. It is a value type:
// consumers always work on a copy.
type Parameters struct {
	Bounds  Bounds     `yaml:"bounds"`
	Gravity [3]float32 `yaml:"gravity"`

	ParticleMass     float32 `yaml:"particle_mass"`
	ParticleRadius   float32 `yaml:"particle_radius"` // draw radius, world units
	ParticleCount    uint32  `yaml:"particle_count"`
	CollisionDamping float32 `yaml:"collision_damping"` // 1 = elastic, 0 = absorbed

	DensityKernelRadius      float32 `yaml:"density_kernel_radius"`
	PressureKernelRadius     float32 `yaml:"pressure_kernel_radius"`
	NearPressureKernelRadius float32 `yaml:"near_pressure_kernel_radius"`
	ViscosityKernelRadius    float32 `yaml:"viscosity_kernel_radius"`

	Viscosity     float32 `yaml:"viscosity"`
	CohesionCoef  float32 `yaml:"cohesion_coef"`
	CurvatureCoef float32 `yaml:"curvature_coef"`
	AdhesionCoef  float32 `yaml:"adhesion_coef"`

	RestDensity            float32 `yaml:"rest_density"`
	PressureMultiplier     float32 `yaml:"pressure_multiplier"`
	NearPressureMultiplier float32 `yaml:"near_pressure_multiplier"`
	GridSize               float32 `yaml:"grid_size"`

	SceneScale                float32 `yaml:"scene_scale"` // world -> scene units
	VorticityKernelRadius     float32 `yaml:"vorticity_kernel_radius"`
	VorticityIntensity        float32 `yaml:"vorticity_intensity"`
	CohesionKernelRadius      float32 `yaml:"cohesion_kernel_radius"`
	AdhesionKernelRadius      float32 `yaml:"adhesion_kernel_radius"`
	SurfaceNormalKernelRadius float32 `yaml:"surface_normal_kernel_radius"`
	TimeScale                 float32 `yaml:"time_scale"`
	VelocitySmoothing         float32 `yaml:"velocity_smoothing"`
}

// Default returns the parameters the simulation starts with when nothing
// else is configured: a 1600x900 scene holding 16384 particles.
func Default() Parameters {
	const width, height = 1600.0, 900.0
	gridSize := float32(0.6)

	return Parameters{
		Bounds: Bounds{
			Min: [3]float32{0, 0, 0},
			Max: [3]float32{width, height, 1},
		},
		Gravity: [3]float32{0, -15, 0},

		ParticleMass:     1,
		ParticleRadius:   1.5,
		ParticleCount:    16384,
		CollisionDamping: 0.9,

		DensityKernelRadius:      gridSize,
		PressureKernelRadius:     gridSize,
		NearPressureKernelRadius: gridSize,
		ViscosityKernelRadius:    gridSize,

		Viscosity:     0.05,
		CohesionCoef:  1,
		CurvatureCoef: 1,
		AdhesionCoef:  1,

		RestDensity:            35,
		PressureMultiplier:     1300,
		NearPressureMultiplier: 110,
		GridSize:               gridSize,

		SceneScale:                float32(50 / math.Sqrt(width*width+height*height)),
		VorticityKernelRadius:     gridSize,
		VorticityIntensity:        0.5,
		CohesionKernelRadius:      gridSize,
		AdhesionKernelRadius:      gridSize,
		SurfaceNormalKernelRadius: gridSize,
		TimeScale:                 1.0 / 120.0,
		VelocitySmoothing:         0.035,
	}
}

// NamedRadius pairs a kernel radius with its configuration name.
type NamedRadius struct {
	Name   string
	Radius float32
}

// KernelRadii returns every kernel radius in wire order.
func (p Parameters) KernelRadii() []NamedRadius {
	return []NamedRadius{
		{"density_kernel_radius", p.DensityKernelRadius},
		{"pressure_kernel_radius", p.PressureKernelRadius},
		{"near_pressure_kernel_radius", p.NearPressureKernelRadius},
		{"viscosity_kernel_radius", p.ViscosityKernelRadius},
		{"vorticity_kernel_radius", p.VorticityKernelRadius},
		{"cohesion_kernel_radius", p.CohesionKernelRadius},
		{"adhesion_kernel_radius", p.AdhesionKernelRadius},
		{"surface_normal_kernel_radius", p.SurfaceNormalKernelRadius},
	}
}

// MaxKernelRadius returns the largest kernel radius.
func (p Parameters) MaxKernelRadius() float32 {
	var m float32
	for _, r := range p.KernelRadii() {
		if r.Radius > m {
			m = r.Radius
		}
	}
	return m
}

// Validate checks the hard invariants. All violations are reported together.
func (p Parameters) Validate() error {
	var errs []error

	if err := p.checkFinite(); err != nil {
		errs = append(errs, err)
	}
	for _, r := range p.KernelRadii() {
		if !(r.Radius > 0) {
			errs = append(errs, fmt.Errorf("%s must be > 0, got %v", r.Name, r.Radius))
		}
	}
	if p.ParticleCount == 0 {
		errs = append(errs, errors.New("particle_count must be > 0"))
	}
	if p.CollisionDamping < 0 || p.CollisionDamping > 1 {
		errs = append(errs, fmt.Errorf("collision_damping must be in [0,1], got %v", p.CollisionDamping))
	}
	if !(p.GridSize > 0) {
		errs = append(errs, fmt.Errorf("grid_size must be > 0, got %v", p.GridSize))
	}
	if !(p.SceneScale > 0) {
		errs = append(errs, fmt.Errorf("scene_scale must be > 0, got %v", p.SceneScale))
	}
	if p.TimeScale < 0 {
		errs = append(errs, fmt.Errorf("time_scale must be >= 0, got %v", p.TimeScale))
	}
	if p.ParticleMass <= 0 {
		errs = append(errs, fmt.Errorf("particle_mass must be > 0, got %v", p.ParticleMass))
	}
	for axis := 0; axis < 2; axis++ {
		if !(p.Bounds.Min[axis] < p.Bounds.Max[axis]) {
			errs = append(errs, fmt.Errorf("bounds axis %d: min %v must be below max %v",
				axis, p.Bounds.Min[axis], p.Bounds.Max[axis]))
		}
	}
	if p.Bounds.Min[2] > p.Bounds.Max[2] {
		errs = append(errs, fmt.Errorf("bounds axis 2: min %v above max %v", p.Bounds.Min[2], p.Bounds.Max[2]))
	}

	return errors.Join(errs...)
}

// Warnings reports soft violations that degrade results without making
// the parameters unusable.
func (p Parameters) Warnings() []string {
	var w []string
	if p.GridSize < p.MaxKernelRadius() {
		w = append(w, fmt.Sprintf("grid_size %v is below the largest kernel radius %v; neighbour scans may miss particles",
			p.GridSize, p.MaxKernelRadius()))
	}
	return w
}

func (p Parameters) checkFinite() error {
	vals := []float32{
		p.ParticleMass, p.ParticleRadius, p.CollisionDamping,
		p.DensityKernelRadius, p.PressureKernelRadius, p.NearPressureKernelRadius, p.ViscosityKernelRadius,
		p.Viscosity, p.CohesionCoef, p.CurvatureCoef, p.AdhesionCoef,
		p.RestDensity, p.PressureMultiplier, p.NearPressureMultiplier, p.GridSize,
		p.SceneScale, p.VorticityKernelRadius, p.VorticityIntensity,
		p.CohesionKernelRadius, p.AdhesionKernelRadius, p.SurfaceNormalKernelRadius,
		p.TimeScale, p.VelocitySmoothing,
	}
	vals = append(vals, p.Gravity[:]...)
	vals = append(vals, p.Bounds.Min[:]...)
	vals = append(vals, p.Bounds.Max[:]...)
	for _, v := range vals {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return errors.New("parameters contain a non-finite value")
		}
	}
	return nil
}
