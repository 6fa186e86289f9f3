package params

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// EncodedSize is the exact byte length of an encoded Parameters value.
// The settings channel has no framing or versioning, so both ends must
// agree on it.
const EncodedSize = 144

// ErrSize is returned when a payload is not exactly EncodedSize bytes.
var ErrSize = errors.New("params: payload size mismatch")

// wireParameters mirrors the fixed field order of the settings channel,
// including the padding words of the GPU uniform layout.
type wireParameters struct {
	BoundsMin [3]float32
	_         uint32
	BoundsMax [3]float32
	_         uint32
	Gravity   [3]float32

	ParticleMass     float32
	ParticleRadius   float32
	ParticleCount    uint32
	CollisionDamping float32

	DensityKernelRadius      float32
	PressureKernelRadius     float32
	NearPressureKernelRadius float32
	ViscosityKernelRadius    float32

	Viscosity     float32
	CohesionCoef  float32
	CurvatureCoef float32
	AdhesionCoef  float32

	RestDensity            float32
	PressureMultiplier     float32
	NearPressureMultiplier float32
	GridSize               float32

	SceneScale            float32
	VorticityKernelRadius float32
	VorticityIntensity    float32
	CohesionKernelRadius  float32

	AdhesionKernelRadius      float32
	SurfaceNormalKernelRadius float32
	TimeScale                 float32
	VelocitySmoothing         float32
	_                         float32
}

func toWire(p Parameters) wireParameters {
	return wireParameters{
		BoundsMin:                 p.Bounds.Min,
		BoundsMax:                 p.Bounds.Max,
		Gravity:                   p.Gravity,
		ParticleMass:              p.ParticleMass,
		ParticleRadius:            p.ParticleRadius,
		ParticleCount:             p.ParticleCount,
		CollisionDamping:          p.CollisionDamping,
		DensityKernelRadius:       p.DensityKernelRadius,
		PressureKernelRadius:      p.PressureKernelRadius,
		NearPressureKernelRadius:  p.NearPressureKernelRadius,
		ViscosityKernelRadius:     p.ViscosityKernelRadius,
		Viscosity:                 p.Viscosity,
		CohesionCoef:              p.CohesionCoef,
		CurvatureCoef:             p.CurvatureCoef,
		AdhesionCoef:              p.AdhesionCoef,
		RestDensity:               p.RestDensity,
		PressureMultiplier:        p.PressureMultiplier,
		NearPressureMultiplier:    p.NearPressureMultiplier,
		GridSize:                  p.GridSize,
		SceneScale:                p.SceneScale,
		VorticityKernelRadius:     p.VorticityKernelRadius,
		VorticityIntensity:        p.VorticityIntensity,
		CohesionKernelRadius:      p.CohesionKernelRadius,
		AdhesionKernelRadius:      p.AdhesionKernelRadius,
		SurfaceNormalKernelRadius: p.SurfaceNormalKernelRadius,
		TimeScale:                 p.TimeScale,
		VelocitySmoothing:         p.VelocitySmoothing,
	}
}

func (w wireParameters) parameters() Parameters {
	return Parameters{
		Bounds:                    Bounds{Min: w.BoundsMin, Max: w.BoundsMax},
		Gravity:                   w.Gravity,
		ParticleMass:              w.ParticleMass,
		ParticleRadius:            w.ParticleRadius,
		ParticleCount:             w.ParticleCount,
		CollisionDamping:          w.CollisionDamping,
		DensityKernelRadius:       w.DensityKernelRadius,
		PressureKernelRadius:      w.PressureKernelRadius,
		NearPressureKernelRadius:  w.NearPressureKernelRadius,
		ViscosityKernelRadius:     w.ViscosityKernelRadius,
		Viscosity:                 w.Viscosity,
		CohesionCoef:              w.CohesionCoef,
		CurvatureCoef:             w.CurvatureCoef,
		AdhesionCoef:              w.AdhesionCoef,
		RestDensity:               w.RestDensity,
		PressureMultiplier:        w.PressureMultiplier,
		NearPressureMultiplier:    w.NearPressureMultiplier,
		GridSize:                  w.GridSize,
		SceneScale:                w.SceneScale,
		VorticityKernelRadius:     w.VorticityKernelRadius,
		VorticityIntensity:        w.VorticityIntensity,
		CohesionKernelRadius:      w.CohesionKernelRadius,
		AdhesionKernelRadius:      w.AdhesionKernelRadius,
		SurfaceNormalKernelRadius: w.SurfaceNormalKernelRadius,
		TimeScale:                 w.TimeScale,
		VelocitySmoothing:         w.VelocitySmoothing,
	}
}

// Encode serialises p into the fixed little-endian layout.
func Encode(p Parameters) []byte {
	var buf bytes.Buffer
	buf.Grow(EncodedSize)
	// Writes into a bytes.Buffer of a fixed-size struct cannot fail.
	_ = binary.Write(&buf, binary.LittleEndian, toWire(p))
	return buf.Bytes()
}

// Decode parses a payload produced by Encode. Payloads of the wrong size
// and payloads that decode to invalid parameters are rejected whole.
func Decode(b []byte) (Parameters, error) {
	if len(b) != EncodedSize {
		return Parameters{}, fmt.Errorf("%w: got %d bytes, want %d", ErrSize, len(b), EncodedSize)
	}
	var w wireParameters
	if err := binary.Read(bytes.NewReader(b), binary.LittleEndian, &w); err != nil {
		return Parameters{}, fmt.Errorf("decoding parameters: %w", err)
	}
	p := w.parameters()
	if err := p.Validate(); err != nil {
		return Parameters{}, fmt.Errorf("invalid parameters: %w", err)
	}
	return p, nil
}
