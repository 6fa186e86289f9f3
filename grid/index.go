package grid

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// Index is a sorted spatial hash ready for neighbour queries.
type Index struct {
	Sorted    []Entry
	Starts    []uint32
	CellSize  float64
	TableSize uint32
	Dims      int
}

// ForEachNeighbor calls fn for every particle j within radius of p,
// including a particle sitting at p itself. delta is p - positions[j].
// Only the 3x3 (2D) or 3x3x3 (3D) block around p is scanned, so radius
// should not exceed CellSize. Cells whose keys collide inside the block
// are scanned once.
func (ix *Index) ForEachNeighbor(p r3.Vec, positions []r3.Vec, radius float64, fn func(j int, delta r3.Vec, dist float64)) {
	c := CellOf(p, ix.CellSize)
	r2 := radius * radius

	zr := int32(1)
	if ix.Dims == 2 {
		zr = 0
	}

	var seen [27]uint32
	nseen := 0

	for dz := -zr; dz <= zr; dz++ {
		for dy := int32(-1); dy <= 1; dy++ {
			for dx := int32(-1); dx <= 1; dx++ {
				key := Hash(Cell{X: c.X + dx, Y: c.Y + dy, Z: c.Z + dz}, ix.TableSize)

				dup := false
				for _, k := range seen[:nseen] {
					if k == key {
						dup = true
						break
					}
				}
				if dup {
					continue
				}
				seen[nseen] = key
				nseen++

				start := ix.Starts[key]
				if start == Empty {
					continue
				}
				for k := int(start); k < len(ix.Sorted) && ix.Sorted[k].Key == key; k++ {
					j := int(ix.Sorted[k].ID)
					d := r3.Sub(p, positions[j])
					d2 := r3.Dot(d, d)
					// also rejects NaN distances
					if !(d2 <= r2) {
						continue
					}
					fn(j, d, r3.Norm(d))
				}
			}
		}
	}
}

// Validate checks that Sorted is ordered by key and that Starts holds the
// first index of every key present and Empty for every key absent.
func (ix *Index) Validate() error {
	if uint32(len(ix.Starts)) != ix.TableSize {
		return fmt.Errorf("cell-start table has %d slots, want %d", len(ix.Starts), ix.TableSize)
	}
	for i := 1; i < len(ix.Sorted); i++ {
		if ix.Sorted[i-1].Key > ix.Sorted[i].Key {
			return fmt.Errorf("entries out of order at %d: key %d after %d", i, ix.Sorted[i].Key, ix.Sorted[i-1].Key)
		}
	}

	first := make(map[uint32]uint32, len(ix.Sorted))
	for i, e := range ix.Sorted {
		if e.Key >= ix.TableSize {
			return fmt.Errorf("entry %d key %d outside table of %d", i, e.Key, ix.TableSize)
		}
		if _, ok := first[e.Key]; !ok {
			first[e.Key] = uint32(i)
		}
	}
	for key, start := range ix.Starts {
		want, ok := first[uint32(key)]
		if !ok {
			want = Empty
		}
		if start != want {
			return fmt.Errorf("start of key %d is %d, want %d", key, start, want)
		}
	}
	return nil
}
