// Package grid implements the spatial hash grid used for neighbour queries:
// particles are keyed by the hash of their cell, sorted by key, and located
// through a table holding the first sorted index of every key.
package grid

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/fluid/workers"
)

// CellLimit bounds cell coordinates so float-to-int conversion never
// overflows for far-away or exploding particles.
const CellLimit = 1 << 20

// Empty marks a hash key with no particles in the cell-start table.
const Empty = math.MaxUint32

// Hash mixing primes.
const (
	primeX = 73856093
	primeY = 19349663
	primeZ = 83492791
)

// Cell is an integer grid coordinate.
type Cell struct {
	X, Y, Z int32
}

// Entry pairs a hash key with the particle it belongs to.
type Entry struct {
	Key uint32
	ID  uint32
}

// CellOf returns the grid cell containing p.
func CellOf(p r3.Vec, cellSize float64) Cell {
	return Cell{
		X: cellCoord(p.X, cellSize),
		Y: cellCoord(p.Y, cellSize),
		Z: cellCoord(p.Z, cellSize),
	}
}

func cellCoord(v, cellSize float64) int32 {
	c := math.Floor(v / cellSize)
	if math.IsNaN(c) {
		return 0
	}
	if c > CellLimit {
		return CellLimit
	}
	if c < -CellLimit {
		return -CellLimit
	}
	return int32(c)
}

// Hash maps a cell to a key in [0, tableSize). Arithmetic wraps on uint32.
func Hash(c Cell, tableSize uint32) uint32 {
	h := uint32(c.X)*primeX ^ uint32(c.Y)*primeY ^ uint32(c.Z)*primeZ
	return h % tableSize
}

// TableSizeFor returns the default table size for n particles: the next
// power of two at or above 2n, never below 64.
func TableSizeFor(n int) uint32 {
	size := uint32(64)
	for int(size) < 2*n && size < 1<<31 {
		size <<= 1
	}
	return size
}

// Build writes one unsorted entry per particle into dst, growing it if
// needed, and returns it.
func Build(dst []Entry, positions []r3.Vec, cellSize float64, tableSize uint32, pool *workers.Pool) []Entry {
	n := len(positions)
	if cap(dst) < n {
		dst = make([]Entry, n)
	}
	dst = dst[:n]

	pool.Dispatch(n, func(lo, hi, _ int) {
		for i := lo; i < hi; i++ {
			dst[i] = Entry{
				Key: Hash(CellOf(positions[i], cellSize), tableSize),
				ID:  uint32(i),
			}
		}
	})
	return dst
}
