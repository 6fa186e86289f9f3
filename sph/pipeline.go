// Package sph advances the particle set one frame at a time through an
// ordered list of data-parallel stages. Each stage declares the frame
// fields it reads and writes; the particle set is only touched by the
// final commit stage.
package sph

import (
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/fluid/grid"
	"github.com/pthm-cable/fluid/kernels"
	"github.com/pthm-cable/fluid/params"
	"github.com/pthm-cable/fluid/particles"
	"github.com/pthm-cable/fluid/workers"
)

// DensityEpsilon is the floor applied to densities before dividing by them.
const DensityEpsilon = 1e-4

// ErrFrameAbandoned is returned by Step when the frame was cancelled before
// its results were committed. The particle set is unchanged.
var ErrFrameAbandoned = errors.New("sph: frame abandoned")

// Field names a piece of per-frame state.
type Field string

// Frame inputs.
const (
	FieldParams     Field = "params"
	FieldPositions  Field = "positions"
	FieldVelocities Field = "velocities"
)

// Frame scratch produced by the stages.
const (
	FieldPredicted     Field = "predicted"
	FieldEntries       Field = "entries"
	FieldSorted        Field = "sorted"
	FieldStarts        Field = "starts"
	FieldDensity       Field = "density"
	FieldNearDensity   Field = "near_density"
	FieldNormals       Field = "normals"
	FieldVorticity     Field = "vorticity"
	FieldForceVelocity Field = "force_velocity"
	FieldNewVelocity   Field = "new_velocity"
	FieldNewPosition   Field = "new_position"
	FieldColors        Field = "colors"
)

// Inputs lists the fields available before the first stage runs.
var Inputs = []Field{FieldParams, FieldPositions, FieldVelocities}

// Stage is one barrier-separated pass over all particles.
type Stage struct {
	Name   string
	Reads  []Field
	Writes []Field
	Run    func(p *Pipeline)
}

// Stage names, also used as telemetry phase names.
const (
	StagePredict    = "predict"
	StageHash       = "hash"
	StageSort       = "sort"
	StageCellStarts = "cell_starts"
	StageDensity    = "density"
	StageNormals    = "normals"
	StageForces     = "forces"
	StageIntegrate  = "integrate"
	StageCommit     = "commit"
)

var stages = []Stage{
	{
		Name:   StagePredict,
		Reads:  []Field{FieldParams, FieldPositions, FieldVelocities},
		Writes: []Field{FieldPredicted},
		Run:    (*Pipeline).predict,
	},
	{
		Name:   StageHash,
		Reads:  []Field{FieldParams, FieldPredicted},
		Writes: []Field{FieldEntries},
		Run:    (*Pipeline).hash,
	},
	{
		Name:   StageSort,
		Reads:  []Field{FieldEntries},
		Writes: []Field{FieldSorted},
		Run:    (*Pipeline).sort,
	},
	{
		Name:   StageCellStarts,
		Reads:  []Field{FieldSorted},
		Writes: []Field{FieldStarts},
		Run:    (*Pipeline).cellStarts,
	},
	{
		Name:   StageDensity,
		Reads:  []Field{FieldParams, FieldPredicted, FieldSorted, FieldStarts},
		Writes: []Field{FieldDensity, FieldNearDensity},
		Run:    (*Pipeline).computeDensity,
	},
	{
		Name:   StageNormals,
		Reads:  []Field{FieldParams, FieldPredicted, FieldVelocities, FieldSorted, FieldStarts, FieldDensity},
		Writes: []Field{FieldNormals, FieldVorticity},
		Run:    (*Pipeline).computeNormals,
	},
	{
		Name: StageForces,
		Reads: []Field{
			FieldParams, FieldPredicted, FieldVelocities, FieldSorted, FieldStarts,
			FieldDensity, FieldNearDensity, FieldNormals, FieldVorticity,
		},
		Writes: []Field{FieldForceVelocity},
		Run:    (*Pipeline).forces,
	},
	{
		Name:   StageIntegrate,
		Reads:  []Field{FieldParams, FieldPositions, FieldPredicted, FieldSorted, FieldStarts, FieldForceVelocity},
		Writes: []Field{FieldNewVelocity, FieldNewPosition, FieldColors},
		Run:    (*Pipeline).integrate,
	},
	{
		Name:   StageCommit,
		Reads:  []Field{FieldNewPosition, FieldNewVelocity, FieldColors},
		Writes: []Field{FieldPositions, FieldVelocities},
		Run:    (*Pipeline).commit,
	},
}

// Stages returns the ordered stage list.
func Stages() []Stage {
	out := make([]Stage, len(stages))
	copy(out, stages)
	return out
}

// ValidateStages checks that every field a stage reads is either a frame
// input or written by an earlier stage.
func ValidateStages(list []Stage, inputs []Field) error {
	have := make(map[Field]bool, len(inputs))
	for _, f := range inputs {
		have[f] = true
	}
	var errs []error
	for _, s := range list {
		for _, f := range s.Reads {
			if !have[f] {
				errs = append(errs, fmt.Errorf("stage %s reads %s before it is written", s.Name, f))
			}
		}
		for _, f := range s.Writes {
			have[f] = true
		}
	}
	return errors.Join(errs...)
}

// Timer receives stage timings. *telemetry.PerfCollector satisfies it.
type Timer interface {
	StartTick()
	StartPhase(name string)
	EndTick()
}

// Options configures a Pipeline. Zero values select defaults.
type Options struct {
	Dims      int                                 // 2 or 3, default 3
	Kernels   *kernels.Set                        // default kernels.NewSet(Dims)
	Pool      *workers.Pool                       // nil runs every stage inline
	Sorter    grid.NeighborSort                   // default grid.ParallelRadixSort on Pool
	TableSize uint32                              // default grid.TableSizeFor(n)
	Timer     Timer                               // optional
	Colorer   func(speed float64) particles.Color // optional per-particle colour
}

// FrameReport summarises one committed frame.
type FrameReport struct {
	Frame          uint64
	MeanNeighbours float64
	MaxNeighbours  int
	NonFinite      int // accelerations or integrated states that were reset
	Clamped        int // boundary collisions

	// Density and NearDensity alias the pipeline scratch and are valid
	// until the next Step.
	Density     []float64
	NearDensity []float64
}

type counters struct {
	neighbours    int
	maxNeighbours int
	nonFinite     int
	clamped       int
	_             [4]int // keep workers off each other's cache line
}

// Pipeline owns the frame scratch and runs the stages against a particle set.
type Pipeline struct {
	set       *particles.Set
	dims      int
	kernels   kernels.Set
	pool      *workers.Pool
	sorter    grid.NeighborSort
	tableSize uint32
	timer     Timer
	colorer   func(speed float64) particles.Color

	frame uint64

	// per-frame state
	params        params.Parameters
	predicted     []r3.Vec
	entries       []grid.Entry
	index         grid.Index
	density       []float64
	nearDensity   []float64
	normals       []r3.Vec
	vorticity     []r3.Vec
	forceVelocity []r3.Vec
	newVelocity   []r3.Vec
	newPosition   []r3.Vec
	newColors     []particles.Color
	counters      []counters
}

// New creates a pipeline advancing set.
func New(set *particles.Set, opts Options) *Pipeline {
	dims := opts.Dims
	if dims != 2 {
		dims = 3
	}
	ks := kernels.NewSet(dims)
	if opts.Kernels != nil {
		ks = *opts.Kernels
	}
	sorter := opts.Sorter
	if sorter == nil {
		sorter = grid.NewParallelRadixSort(opts.Pool)
	}
	n := set.Len()
	tableSize := opts.TableSize
	if tableSize == 0 {
		tableSize = grid.TableSizeFor(n)
	}

	return &Pipeline{
		set:       set,
		dims:      dims,
		kernels:   ks,
		pool:      opts.Pool,
		sorter:    sorter,
		tableSize: tableSize,
		timer:     opts.Timer,
		colorer:   opts.Colorer,

		predicted:     make([]r3.Vec, n),
		density:       make([]float64, n),
		nearDensity:   make([]float64, n),
		normals:       make([]r3.Vec, n),
		vorticity:     make([]r3.Vec, n),
		forceVelocity: make([]r3.Vec, n),
		newVelocity:   make([]r3.Vec, n),
		newPosition:   make([]r3.Vec, n),
		newColors:     make([]particles.Color, n),
		counters:      make([]counters, opts.Pool.Workers()),
		index: grid.Index{
			Starts:    make([]uint32, tableSize),
			TableSize: tableSize,
			Dims:      dims,
		},
	}
}

// Set returns the particle set the pipeline advances.
func (p *Pipeline) Set() *particles.Set { return p.set }

// Dims returns the number of simulated axes.
func (p *Pipeline) Dims() int { return p.dims }

// Frame returns the number of committed frames.
func (p *Pipeline) Frame() uint64 { return p.frame }

// Index returns the neighbour index built by the most recent Step.
func (p *Pipeline) Index() *grid.Index { return &p.index }

// Step runs one frame with the given parameter snapshot. The context is
// checked before every stage; if it is done before the commit stage the
// particle set is left untouched and the error wraps both
// ErrFrameAbandoned and the context error.
func (p *Pipeline) Step(ctx context.Context, snap params.Parameters) (FrameReport, error) {
	if err := snap.Validate(); err != nil {
		return FrameReport{}, fmt.Errorf("frame parameters: %w", err)
	}
	p.params = snap
	for i := range p.counters {
		p.counters[i] = counters{}
	}

	if p.timer != nil {
		p.timer.StartTick()
	}
	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			return FrameReport{}, fmt.Errorf("%w before %s: %w", ErrFrameAbandoned, s.Name, err)
		}
		if p.timer != nil {
			p.timer.StartPhase(s.Name)
		}
		s.Run(p)
	}
	if p.timer != nil {
		p.timer.EndTick()
	}

	return p.report(), nil
}

func (p *Pipeline) report() FrameReport {
	r := FrameReport{
		Frame:       p.frame,
		Density:     p.density,
		NearDensity: p.nearDensity,
	}
	var total int
	for _, c := range p.counters {
		total += c.neighbours
		r.MaxNeighbours = max(r.MaxNeighbours, c.maxNeighbours)
		r.NonFinite += c.nonFinite
		r.Clamped += c.clamped
	}
	if n := p.set.Len(); n > 0 {
		r.MeanNeighbours = float64(total) / float64(n)
	}
	return r
}
