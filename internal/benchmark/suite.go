// Package benchmark measures the detection pipeline on synthetic scenes.
package benchmark

import (
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/MeKo-Tech/shipscan/internal/common"
)

// Result holds the outcome of one benchmark.
type Result struct {
	Name         string
	Duration     time.Duration
	MemoryBefore common.MemoryStats
	MemoryAfter  common.MemoryStats
	Iterations   int
	Error        error
}

// Mean returns the average duration of one iteration.
func (r Result) Mean() time.Duration {
	if r.Iterations == 0 {
		return 0
	}
	return r.Duration / time.Duration(r.Iterations)
}

// AllocatedKB returns the kilobytes allocated per iteration.
func (r Result) AllocatedKB() uint64 {
	if r.Iterations == 0 {
		return 0
	}
	return r.MemoryAfter.AllocatedSince(r.MemoryBefore) / 1024 / uint64(r.Iterations) //nolint:gosec
}

// String returns a formatted string representation of the benchmark result.
func (r Result) String() string {
	if r.Error != nil {
		return fmt.Sprintf("%s: ERROR - %v", r.Name, r.Error)
	}
	return fmt.Sprintf("%s: %d iterations, avg: %v, total: %v, alloc: %d KB/op",
		r.Name, r.Iterations, r.Mean(), r.Duration, r.AllocatedKB())
}

// Benchmark represents a benchmark function.
type Benchmark struct {
	Name string
	Func func() error
}

// Suite runs named benchmarks.
type Suite struct {
	benchmarks []Benchmark
	results    []Result
	mu         sync.Mutex
}

// NewSuite creates an empty suite.
func NewSuite() *Suite {
	return &Suite{}
}

// Add adds a benchmark to the suite.
func (s *Suite) Add(name string, fn func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.benchmarks = append(s.benchmarks, Benchmark{Name: name, Func: fn})
}

// Run runs the named benchmark iterations times.
func (s *Suite) Run(name string, iterations int) Result {
	s.mu.Lock()
	var (
		b     Benchmark
		found bool
	)
	for _, c := range s.benchmarks {
		if c.Name == name {
			b, found = c, true
			break
		}
	}
	s.mu.Unlock()

	if !found {
		return Result{Name: name, Error: fmt.Errorf("benchmark '%s' not found", name)}
	}
	return run(b, iterations)
}

// RunAll runs every benchmark in the order added.
func (s *Suite) RunAll(iterations int) []Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.results = make([]Result, 0, len(s.benchmarks))
	for _, b := range s.benchmarks {
		s.results = append(s.results, run(b, iterations))
	}
	return s.results
}

// Results returns the results of the last RunAll.
func (s *Suite) Results() []Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results
}

// WriteResults prints the results of the last RunAll.
func (s *Suite) WriteResults(w io.Writer) {
	_, _ = fmt.Fprintln(w, "\nBenchmark Results:")
	_, _ = fmt.Fprintln(w, "==================")
	for _, r := range s.Results() {
		_, _ = fmt.Fprintln(w, r.String())
	}
	_, _ = fmt.Fprintln(w)
}

func run(b Benchmark, iterations int) Result {
	runtime.GC()
	before := common.GetMemoryStats()

	timer := common.NewNamedTimer(b.Name)
	var err error
	done := 0
	for range iterations {
		if err = b.Func(); err != nil {
			break
		}
		done++
	}
	d := timer.Stop()

	return Result{
		Name:         b.Name,
		Duration:     d,
		MemoryBefore: before,
		MemoryAfter:  common.GetMemoryStats(),
		Iterations:   done,
		Error:        err,
	}
}
