package main

import "github.com/pthm-cable/fluid/params"

// slider binds one parameter to a GUI slider range.
type slider struct {
	Label    string
	Value    *float32
	Min, Max float32
	Format   string
}

// generalSliders returns the sliders for the scalar simulation parameters.
func generalSliders(p *params.Parameters) []slider {
	return []slider{
		{"Scene scale", &p.SceneScale, 0, 1, "%.4f"},
		{"Time scale", &p.TimeScale, 0, 1, "%.4f"},
		{"Particle mass", &p.ParticleMass, 0, 100, "%.2f"},
		{"Particle (draw) radius", &p.ParticleRadius, 0.5, 100, "%.2f"},
		{"Collision damping", &p.CollisionDamping, 0, 1, "%.2f"},
		{"Viscosity", &p.Viscosity, 0, 100, "%.3f"},
		{"Cohesion coef.", &p.CohesionCoef, 0, 50000, "%.1f"},
		{"Curvature coef.", &p.CurvatureCoef, 0, 50000, "%.1f"},
		{"Adhesion coef.", &p.AdhesionCoef, 0, 50000, "%.1f"},
		{"Rest density", &p.RestDensity, 0, 1000, "%.1f"},
		{"Vorticity intensity", &p.VorticityIntensity, 0, 1, "%.2f"},
		{"Pressure multiplier", &p.PressureMultiplier, 0, 10000, "%.1f"},
		{"Near pressure multiplier", &p.NearPressureMultiplier, 0, 10000, "%.1f"},
		{"Grid size", &p.GridSize, 0.01, 10, "%.2f"},
		{"Velocity smoothing", &p.VelocitySmoothing, 0, 1, "%.3f"},
		{"Gravity x", &p.Gravity[0], -50, 50, "%.2f"},
		{"Gravity y", &p.Gravity[1], -50, 50, "%.2f"},
	}
}

// kernelSliders returns the sliders for every kernel radius.
func kernelSliders(p *params.Parameters) []slider {
	const lo, hi = 0.1, 5
	return []slider{
		{"Density kernel radius", &p.DensityKernelRadius, lo, hi, "%.2f"},
		{"Pressure kernel radius", &p.PressureKernelRadius, lo, hi, "%.2f"},
		{"Near pressure kernel radius", &p.NearPressureKernelRadius, lo, hi, "%.2f"},
		{"Viscosity kernel radius", &p.ViscosityKernelRadius, lo, hi, "%.2f"},
		{"Vorticity kernel radius", &p.VorticityKernelRadius, lo, hi, "%.2f"},
		{"Cohesion kernel radius", &p.CohesionKernelRadius, lo, hi, "%.2f"},
		{"Adhesion kernel radius", &p.AdhesionKernelRadius, lo, hi, "%.2f"},
		{"Surface normal kernel radius", &p.SurfaceNormalKernelRadius, lo, hi, "%.2f"},
	}
}

// boundsSliders returns the sliders for the XY bounding box. The box can
// only shrink inside start and always keeps at least one unit of width
// and height.
func boundsSliders(p *params.Parameters, start params.Bounds) []slider {
	b := &p.Bounds
	return []slider{
		{"Bounds x1", &b.Min[0], start.Min[0], b.Max[0] - 1, "%.0f"},
		{"Bounds y1", &b.Min[1], start.Min[1], b.Max[1] - 1, "%.0f"},
		{"Bounds x2", &b.Max[0], b.Min[0] + 1, start.Max[0], "%.0f"},
		{"Bounds y2", &b.Max[1], b.Min[1] + 1, start.Max[1], "%.0f"},
	}
}

// clampAll pulls every slider value into its range.
func clampAll(sliders []slider) {
	for _, s := range sliders {
		*s.Value = min(max(*s.Value, s.Min), s.Max)
	}
}
