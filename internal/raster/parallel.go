package raster

import (
	"runtime"
	"sync"
)

// minBandSize is the smallest number of rows (or columns) handed to a worker.
// Smaller grids are processed on the calling goroutine.
const minBandSize = 16

// DefaultWorkers returns the worker count used when callers pass 0.
func DefaultWorkers() int { return runtime.NumCPU() }

// Bands splits [0, n) into at most workers contiguous half-open ranges of
// at least minBandSize elements each. The ranges are returned in order.
func Bands(n, workers int) [][2]int {
	if n <= 0 {
		return nil
	}
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	if maxBands := (n + minBandSize - 1) / minBandSize; workers > maxBands {
		workers = maxBands
	}
	size := (n + workers - 1) / workers
	bands := make([][2]int, 0, workers)
	for lo := 0; lo < n; lo += size {
		bands = append(bands, [2]int{lo, min(lo+size, n)})
	}
	return bands
}

// ParallelBands runs fn over contiguous bands of [0, n) on a bounded set of
// goroutines and waits for all of them. Bands never overlap, so fn may write
// to disjoint regions of a shared buffer without locking.
func ParallelBands(n, workers int, fn func(lo, hi int)) {
	bands := Bands(n, workers)
	if len(bands) <= 1 {
		if n > 0 {
			fn(0, n)
		}
		return
	}

	var wg sync.WaitGroup
	for _, b := range bands {
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			fn(lo, hi)
		}(b[0], b[1])
	}
	wg.Wait()
}
