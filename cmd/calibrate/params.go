package main

import "github.com/pthm-cable/fluid/params"

// ParamSpec defines a single tunable parameter.
type ParamSpec struct {
	Name    string  // matches the yaml key
	Min     float64 // Lower bound
	Max     float64 // Upper bound
	Default float64 // Default value
}

// ParamVector holds the set of all tunable parameters.
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector creates the standard set of tunable parameters. Defaults
// come from base so a calibration starts where the config left off.
func NewParamVector(base params.Parameters) *ParamVector {
	return &ParamVector{
		Specs: []ParamSpec{
			{Name: "pressure_multiplier", Min: 100, Max: 5000, Default: float64(base.PressureMultiplier)},
			{Name: "near_pressure_multiplier", Min: 10, Max: 1000, Default: float64(base.NearPressureMultiplier)},
			{Name: "viscosity", Min: 0, Max: 1, Default: float64(base.Viscosity)},
			{Name: "velocity_smoothing", Min: 0, Max: 0.2, Default: float64(base.VelocitySmoothing)},
		},
	}
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// DefaultVector returns the default parameter values as a slice.
func (pv *ParamVector) DefaultVector() []float64 {
	v := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		v[i] = spec.Default
	}
	return v
}

// Normalize converts raw parameter values to [0,1] range.
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	normalized := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		normalized[i] = (raw[i] - spec.Min) / (spec.Max - spec.Min)
	}
	return normalized
}

// Denormalize converts [0,1] values back to raw parameter values.
func (pv *ParamVector) Denormalize(normalized []float64) []float64 {
	raw := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		raw[i] = spec.Min + normalized[i]*(spec.Max-spec.Min)
	}
	return raw
}

// Clamp ensures all values are within bounds.
func (pv *ParamVector) Clamp(v []float64) []float64 {
	clamped := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		clamped[i] = min(max(v[i], spec.Min), spec.Max)
	}
	return clamped
}

// Apply returns p with the clamped values written in. Order must match
// Specs.
func (pv *ParamVector) Apply(p params.Parameters, values []float64) params.Parameters {
	c := pv.Clamp(values)
	p.PressureMultiplier = float32(c[0])
	p.NearPressureMultiplier = float32(c[1])
	p.Viscosity = float32(c[2])
	p.VelocitySmoothing = float32(c[3])
	return p
}

// Extract reads the current values from p.
func (pv *ParamVector) Extract(p params.Parameters) []float64 {
	return []float64{
		float64(p.PressureMultiplier),
		float64(p.NearPressureMultiplier),
		float64(p.Viscosity),
		float64(p.VelocitySmoothing),
	}
}
