package grid

import (
	"github.com/pthm-cable/fluid/workers"
)

const (
	radixBits    = 8
	radixBuckets = 1 << radixBits
	radixMask    = radixBuckets - 1
)

// NeighborSort orders entries by key and builds the cell-start table.
// Implementations are interchangeable; all produce a stable ordering.
type NeighborSort interface {
	// Sort orders entries by key. Keys are below tableSize. The result is
	// either entries itself or a buffer owned by the sorter, valid until
	// the next call.
	Sort(entries []Entry, tableSize uint32) []Entry
	// FindCellStarts fills starts with the first sorted index of every key,
	// and Empty for keys that do not occur.
	FindCellStarts(sorted []Entry, starts []uint32)
}

// radixPasses returns how many 8-bit digits are needed for keys below
// tableSize.
func radixPasses(tableSize uint32) int {
	if tableSize <= 1 {
		return 0
	}
	maxKey := tableSize - 1
	passes := 0
	for maxKey > 0 {
		passes++
		maxKey >>= radixBits
	}
	return passes
}

// RadixSort is a sequential stable LSD radix sort.
type RadixSort struct {
	buf []Entry
}

// Sort implements NeighborSort.
func (s *RadixSort) Sort(entries []Entry, tableSize uint32) []Entry {
	n := len(entries)
	if n == 0 {
		return entries
	}
	if cap(s.buf) < n {
		s.buf = make([]Entry, n)
	}
	src, dst := entries, s.buf[:n]

	for pass := 0; pass < radixPasses(tableSize); pass++ {
		shift := uint(pass * radixBits)

		var count [radixBuckets]int
		for _, e := range src {
			count[(e.Key>>shift)&radixMask]++
		}
		offset := 0
		for d := range count {
			c := count[d]
			count[d] = offset
			offset += c
		}
		for _, e := range src {
			d := (e.Key >> shift) & radixMask
			dst[count[d]] = e
			count[d]++
		}
		src, dst = dst, src
	}
	return src
}

// FindCellStarts implements NeighborSort.
func (s *RadixSort) FindCellStarts(sorted []Entry, starts []uint32) {
	findCellStarts(sorted, starts)
}

func clearStarts(starts []uint32, lo, hi int) {
	for i := lo; i < hi; i++ {
		starts[i] = Empty
	}
}

func findCellStarts(sorted []Entry, starts []uint32) {
	clearStarts(starts, 0, len(starts))
	for i := range sorted {
		k := sorted[i].Key
		if i == 0 || sorted[i-1].Key != k {
			starts[k] = uint32(i)
		}
	}
}

// ParallelRadixSort is a stable LSD radix sort whose histogram and scatter
// phases run on a worker pool. Each chunk scatters its own elements in
// order into a range reserved by a digit-major prefix sum, which keeps the
// sort stable.
type ParallelRadixSort struct {
	Pool *workers.Pool

	buf     []Entry
	hist    [][radixBuckets]uint32
	offsets [][radixBuckets]uint32
}

// NewParallelRadixSort creates a sorter that runs on pool.
func NewParallelRadixSort(pool *workers.Pool) *ParallelRadixSort {
	return &ParallelRadixSort{Pool: pool}
}

// Sort implements NeighborSort.
func (s *ParallelRadixSort) Sort(entries []Entry, tableSize uint32) []Entry {
	n := len(entries)
	if n < workers.Threshold || s.Pool.Workers() == 1 {
		var seq RadixSort
		seq.buf = s.buf
		out := seq.Sort(entries, tableSize)
		s.buf = seq.buf
		return out
	}

	if cap(s.buf) < n {
		s.buf = make([]Entry, n)
	}
	chunks := s.Pool.Workers()
	size := workers.ChunkSize(n, chunks)
	if len(s.hist) < chunks {
		s.hist = make([][radixBuckets]uint32, chunks)
		s.offsets = make([][radixBuckets]uint32, chunks)
	}

	src, dst := entries, s.buf[:n]
	for pass := 0; pass < radixPasses(tableSize); pass++ {
		shift := uint(pass * radixBits)

		s.Pool.DispatchChunks(n, func(lo, hi, _ int) {
			h := &s.hist[lo/size]
			*h = [radixBuckets]uint32{}
			for _, e := range src[lo:hi] {
				h[(e.Key>>shift)&radixMask]++
			}
		})

		used := (n + size - 1) / size
		var running uint32
		for d := 0; d < radixBuckets; d++ {
			for c := 0; c < used; c++ {
				s.offsets[c][d] = running
				running += s.hist[c][d]
			}
		}

		s.Pool.DispatchChunks(n, func(lo, hi, _ int) {
			off := &s.offsets[lo/size]
			for _, e := range src[lo:hi] {
				d := (e.Key >> shift) & radixMask
				dst[off[d]] = e
				off[d]++
			}
		})
		src, dst = dst, src
	}
	return src
}

// FindCellStarts implements NeighborSort. The table is cleared and filled
// in two barrier-separated passes.
func (s *ParallelRadixSort) FindCellStarts(sorted []Entry, starts []uint32) {
	n := len(sorted)
	if n < workers.Threshold {
		findCellStarts(sorted, starts)
		return
	}
	s.Pool.Dispatch(len(starts), func(lo, hi, _ int) {
		clearStarts(starts, lo, hi)
	})
	s.Pool.Dispatch(n, func(lo, hi, _ int) {
		for i := lo; i < hi; i++ {
			k := sorted[i].Key
			if i == 0 || sorted[i-1].Key != k {
				starts[k] = uint32(i)
			}
		}
	})
}
