package sph

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/fluid/grid"
	"github.com/pthm-cable/fluid/kernels"
)

func finite(v r3.Vec) bool {
	return !math.IsNaN(v.X) && !math.IsNaN(v.Y) && !math.IsNaN(v.Z) &&
		!math.IsInf(v.X, 0) && !math.IsInf(v.Y, 0) && !math.IsInf(v.Z, 0)
}

func vec(a [3]float32) r3.Vec {
	return r3.Vec{X: float64(a[0]), Y: float64(a[1]), Z: float64(a[2])}
}

func axis(v r3.Vec, a int) float64 {
	switch a {
	case 0:
		return v.X
	case 1:
		return v.Y
	}
	return v.Z
}

func setAxis(v *r3.Vec, a int, x float64) {
	switch a {
	case 0:
		v.X = x
	case 1:
		v.Y = x
	default:
		v.Z = x
	}
}

// sanitize replaces non-finite components: NaN goes to the middle of the
// bounds, infinities to the matching side.
func sanitize(x, bmin, bmax r3.Vec) r3.Vec {
	for a := 0; a < 3; a++ {
		v := axis(x, a)
		switch {
		case math.IsNaN(v):
			setAxis(&x, a, (axis(bmin, a)+axis(bmax, a))/2)
		case math.IsInf(v, 1):
			setAxis(&x, a, axis(bmax, a))
		case math.IsInf(v, -1):
			setAxis(&x, a, axis(bmin, a))
		}
	}
	return x
}

func (p *Pipeline) n() int { return p.set.Len() }

func (p *Pipeline) flatten(v r3.Vec) r3.Vec {
	if p.dims == 2 {
		v.Z = 0
	}
	return v
}

// predict moves every particle along its velocity for one time step, in
// scene units. The result is only used for neighbour structure and forces.
func (p *Pipeline) predict() {
	scale := float64(p.params.SceneScale)
	dt := float64(p.params.TimeScale)
	pos, vel := p.set.Positions, p.set.Velocities

	p.pool.Dispatch(p.n(), func(lo, hi, _ int) {
		for i := lo; i < hi; i++ {
			x := r3.Add(r3.Scale(scale, pos[i]), r3.Scale(dt, vel[i]))
			p.predicted[i] = p.flatten(x)
		}
	})
}

func (p *Pipeline) hash() {
	p.entries = grid.Build(p.entries, p.predicted, float64(p.params.GridSize), p.tableSize, p.pool)
}

func (p *Pipeline) sort() {
	p.index.Sorted = p.sorter.Sort(p.entries, p.tableSize)
}

func (p *Pipeline) cellStarts() {
	p.sorter.FindCellStarts(p.index.Sorted, p.index.Starts)
	p.index.CellSize = float64(p.params.GridSize)
}

// computeDensity sums density and near density at the predicted positions.
func (p *Pipeline) computeDensity() {
	m := float64(p.params.ParticleMass)
	hd := float64(p.params.DensityKernelRadius)
	hn := float64(p.params.NearPressureKernelRadius)
	radius := math.Max(hd, hn)
	kd, kn := p.kernels.Density, p.kernels.Near

	p.pool.Dispatch(p.n(), func(lo, hi, worker int) {
		c := &p.counters[worker]
		var i, count int
		var rho, near float64
		visit := func(j int, _ r3.Vec, r float64) {
			rho += m * kd.Weight(r, hd)
			near += m * kn.Weight(r, hn)
			if j != i {
				count++
			}
		}
		for i = lo; i < hi; i++ {
			rho, near, count = 0, 0, 0
			p.index.ForEachNeighbor(p.predicted[i], p.predicted, radius, visit)
			p.density[i] = rho
			p.nearDensity[i] = near

			c.neighbours += count
			c.maxNeighbours = max(c.maxNeighbours, count)
		}
	})
}

// computeNormals computes the colour-field gradient used as surface normal and
// the velocity curl used by vorticity confinement.
func (p *Pipeline) computeNormals() {
	m := float64(p.params.ParticleMass)
	hs := float64(p.params.SurfaceNormalKernelRadius)
	hv := float64(p.params.VorticityKernelRadius)
	radius := math.Max(hs, hv)
	kn, kv := p.kernels.Normal, p.kernels.Vorticity
	vel := p.set.Velocities

	p.pool.Dispatch(p.n(), func(lo, hi, _ int) {
		var i int
		var normal, curl r3.Vec
		visit := func(j int, d r3.Vec, r float64) {
			if j == i {
				return
			}
			w := m / math.Max(p.density[j], DensityEpsilon)
			normal = r3.Add(normal, r3.Scale(w, kernels.Gradient(kn, d, r, hs)))
			dv := r3.Sub(vel[j], vel[i])
			curl = r3.Add(curl, r3.Scale(w, r3.Cross(dv, kernels.Gradient(kv, d, r, hv))))
		}
		for i = lo; i < hi; i++ {
			normal, curl = r3.Vec{}, r3.Vec{}
			p.index.ForEachNeighbor(p.predicted[i], p.predicted, radius, visit)
			p.normals[i] = p.flatten(r3.Scale(hs, normal))
			p.vorticity[i] = curl
		}
	})
}

// forces accumulates force densities, divides by density and applies the
// resulting acceleration to the current velocity.
func (p *Pipeline) forces() {
	prm := &p.params
	m := float64(prm.ParticleMass)
	dt := float64(prm.TimeScale)
	restDensity := float64(prm.RestDensity)
	k := float64(prm.PressureMultiplier)
	kNear := float64(prm.NearPressureMultiplier)
	mu := float64(prm.Viscosity)
	cohesion := float64(prm.CohesionCoef)
	curvature := float64(prm.CurvatureCoef)
	adhesion := float64(prm.AdhesionCoef)
	vortEps := float64(prm.VorticityIntensity)
	gravity := vec(prm.Gravity)

	hp := float64(prm.PressureKernelRadius)
	hn := float64(prm.NearPressureKernelRadius)
	hv := float64(prm.ViscosityKernelRadius)
	hc := float64(prm.CohesionKernelRadius)
	hw := float64(prm.VorticityKernelRadius)
	ha := float64(prm.AdhesionKernelRadius)
	radius := max(hp, hn, hv, hc, hw)

	scale := float64(prm.SceneScale)
	lo3 := r3.Scale(scale, vec(prm.Bounds.Min))
	hi3 := r3.Scale(scale, vec(prm.Bounds.Max))

	ks := p.kernels
	vel := p.set.Velocities

	p.pool.Dispatch(p.n(), func(lo, hi, worker int) {
		c := &p.counters[worker]

		var i int
		var rhoI, pI, pNearI float64
		var f, vortGrad r3.Vec

		visit := func(j int, d r3.Vec, r float64) {
			if j == i {
				return
			}
			rhoJ := math.Max(p.density[j], DensityEpsilon)
			pJ := k * (rhoJ - restDensity)
			pNearJ := kNear * p.nearDensity[j]

			// pressure and near pressure
			f = r3.Sub(f, r3.Scale(m*(pI+pJ)/(2*rhoJ), kernels.Gradient(ks.Pressure, d, r, hp)))
			f = r3.Sub(f, r3.Scale(m*(pNearI+pNearJ)/(2*rhoJ), kernels.Gradient(ks.Near, d, r, hn)))

			// viscosity
			if r < hv {
				dv := r3.Sub(vel[j], vel[i])
				f = r3.Add(f, r3.Scale(mu*m/rhoJ*ks.Viscosity.Weight(r, hv), dv))
			}

			// surface tension: cohesion along the pair axis, curvature
			// along the normal difference
			if r < hc {
				kij := 2 * restDensity / (rhoI + rhoJ)
				if r > 0 {
					f = r3.Sub(f, r3.Scale(cohesion*kij*m*m*ks.Cohesion.Weight(r, hc)/r, d))
				}
				f = r3.Sub(f, r3.Scale(curvature*kij*m, r3.Sub(p.normals[i], p.normals[j])))
			}

			// gradient of the vorticity magnitude
			if r < hw {
				g := kernels.Gradient(ks.Vorticity, d, r, hw)
				vortGrad = r3.Add(vortGrad, r3.Scale(m/rhoJ*r3.Norm(p.vorticity[j]), g))
			}
		}

		for i = lo; i < hi; i++ {
			rhoI = math.Max(p.density[i], DensityEpsilon)
			pI = k * (rhoI - restDensity)
			pNearI = kNear * p.nearDensity[i]
			f, vortGrad = r3.Vec{}, r3.Vec{}

			x := p.predicted[i]
			p.index.ForEachNeighbor(x, p.predicted, radius, visit)

			// vorticity confinement, applied as an acceleration
			if vortEps != 0 {
				if n := r3.Norm(vortGrad); n > 0 {
					nv := r3.Scale(1/n, vortGrad)
					f = r3.Add(f, r3.Scale(rhoI*vortEps, r3.Cross(nv, p.vorticity[i])))
				}
			}

			// adhesion pulls particles near a wall towards it
			if adhesion != 0 {
				for a := 0; a < p.dims; a++ {
					xa := axis(x, a)
					if dist := xa - axis(lo3, a); dist >= 0 && dist < ha {
						setAxis(&f, a, axis(f, a)-adhesion*m*m*ks.Adhesion.Weight(dist, ha))
					}
					if dist := axis(hi3, a) - xa; dist >= 0 && dist < ha {
						setAxis(&f, a, axis(f, a)+adhesion*m*m*ks.Adhesion.Weight(dist, ha))
					}
				}
			}

			f = r3.Add(f, r3.Scale(rhoI, gravity))

			acc := p.flatten(r3.Scale(1/rhoI, f))
			if !finite(acc) {
				acc = r3.Vec{}
				c.nonFinite++
			}
			p.forceVelocity[i] = r3.Add(vel[i], r3.Scale(dt, acc))
		}
	})
}

// integrate blends each velocity towards its neighbourhood mean, advances
// world positions and resolves boundary collisions.
func (p *Pipeline) integrate() {
	prm := &p.params
	dt := float64(prm.TimeScale)
	scale := float64(prm.SceneScale)
	smoothing := float64(prm.VelocitySmoothing)
	damping := float64(prm.CollisionDamping)
	hv := float64(prm.ViscosityKernelRadius)
	kw := p.kernels.Density
	bmin, bmax := vec(prm.Bounds.Min), vec(prm.Bounds.Max)
	pos := p.set.Positions

	p.pool.Dispatch(p.n(), func(lo, hi, worker int) {
		c := &p.counters[worker]

		var wsum float64
		var vsum r3.Vec
		visit := func(j int, _ r3.Vec, r float64) {
			w := kw.Weight(r, hv)
			wsum += w
			vsum = r3.Add(vsum, r3.Scale(w, p.forceVelocity[j]))
		}

		for i := lo; i < hi; i++ {
			v := p.forceVelocity[i]
			if smoothing != 0 {
				wsum, vsum = 0, r3.Vec{}
				p.index.ForEachNeighbor(p.predicted[i], p.predicted, hv, visit)
				if wsum > 0 {
					mean := r3.Scale(1/wsum, vsum)
					v = r3.Add(v, r3.Scale(smoothing, r3.Sub(mean, v)))
				}
			}
			v = p.flatten(v)

			x := p.flatten(r3.Add(pos[i], r3.Scale(dt/scale, v)))
			if !finite(x) || !finite(v) {
				x, v = p.flatten(sanitize(pos[i], bmin, bmax)), r3.Vec{}
				c.nonFinite++
			}

			for a := 0; a < p.dims; a++ {
				xa, va := axis(x, a), axis(v, a)
				switch {
				case xa < axis(bmin, a):
					setAxis(&x, a, axis(bmin, a))
					setAxis(&v, a, -va*damping)
					c.clamped++
				case xa > axis(bmax, a):
					setAxis(&x, a, axis(bmax, a))
					setAxis(&v, a, -va*damping)
					c.clamped++
				}
			}

			p.newPosition[i] = x
			p.newVelocity[i] = v
			if p.colorer != nil {
				p.newColors[i] = p.colorer(r3.Norm(v))
			}
		}
	})
}

// commit publishes the frame's results into the particle set.
func (p *Pipeline) commit() {
	copy(p.set.Positions, p.newPosition)
	copy(p.set.Velocities, p.newVelocity)
	if p.colorer != nil {
		copy(p.set.Colors, p.newColors)
	}
	p.frame++
}
