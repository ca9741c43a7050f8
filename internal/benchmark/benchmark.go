// Package benchmark measures the rectification engine on synthetic scenes.
package benchmark

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"
)

// Timer provides simple timing utilities for benchmarking.
type Timer struct {
	start    time.Time
	name     string
	duration time.Duration
}

// NewTimer creates a new timer with the given name.
func NewTimer(name string) *Timer {
	return &Timer{
		name:  name,
		start: time.Now(),
	}
}

// Stop stops the timer and returns the elapsed duration.
func (t *Timer) Stop() time.Duration {
	t.duration = time.Since(t.start)
	return t.duration
}

// Duration returns the recorded duration (only valid after Stop()).
func (t *Timer) Duration() time.Duration {
	return t.duration
}

func (t *Timer) String() string {
	return fmt.Sprintf("%s: %v", t.name, t.duration)
}

// MemoryStats holds memory usage statistics.
type MemoryStats struct {
	AllocBytes      uint64 `json:"alloc_bytes"`
	TotalAllocBytes uint64 `json:"total_alloc_bytes"`
	Mallocs         uint64 `json:"mallocs"`
	NumGC           uint32 `json:"num_gc"`
}

// GetMemoryStats returns current memory statistics.
func GetMemoryStats() MemoryStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return MemoryStats{
		AllocBytes:      m.Alloc,
		TotalAllocBytes: m.TotalAlloc,
		Mallocs:         m.Mallocs,
		NumGC:           m.NumGC,
	}
}

// Result holds the outcome of one benchmark.
type Result struct {
	Name         string        `json:"name"`
	Iterations   int           `json:"iterations"`
	Duration     time.Duration `json:"duration_ns"`
	MemoryBefore MemoryStats   `json:"memory_before"`
	MemoryAfter  MemoryStats   `json:"memory_after"`
	Err          error         `json:"-"`
	Error        string        `json:"error,omitempty"`
}

// PerOp returns the mean duration of one iteration.
func (r Result) PerOp() time.Duration {
	if r.Iterations <= 0 {
		return 0
	}
	return r.Duration / time.Duration(r.Iterations)
}

// AllocatedPerOp returns the mean bytes allocated by one iteration.
func (r Result) AllocatedPerOp() uint64 {
	if r.Iterations <= 0 || r.MemoryAfter.TotalAllocBytes < r.MemoryBefore.TotalAllocBytes {
		return 0
	}
	return (r.MemoryAfter.TotalAllocBytes - r.MemoryBefore.TotalAllocBytes) / uint64(r.Iterations) //nolint:gosec // G115: iterations is positive
}

func (r Result) String() string {
	if r.Err != nil {
		return fmt.Sprintf("%s: ERROR - %v", r.Name, r.Err)
	}
	return fmt.Sprintf("%s: %d iterations, avg: %v, total: %v, alloc/op: %d KB",
		r.Name, r.Iterations, r.PerOp(), r.Duration, r.AllocatedPerOp()/1024)
}

// Func is one benchmarked operation.
type Func func(ctx context.Context) error

type entry struct {
	name string
	fn   Func
}

// Suite runs a list of named benchmarks in registration order.
type Suite struct {
	entries []entry
	results []Result
	mu      sync.Mutex
}

// NewSuite creates an empty suite.
func NewSuite() *Suite {
	return &Suite{}
}

// Add registers a benchmark.
func (s *Suite) Add(name string, fn Func) {
	s.entries = append(s.entries, entry{name: name, fn: fn})
}

// Names lists the registered benchmarks.
func (s *Suite) Names() []string {
	names := make([]string, len(s.entries))
	for i, e := range s.entries {
		names[i] = e.name
	}
	return names
}

// Filter returns a suite holding only the named benchmarks, in the given
// order.
func (s *Suite) Filter(names ...string) (*Suite, error) {
	out := NewSuite()
	for _, name := range names {
		found := false
		for _, e := range s.entries {
			if e.name == name {
				out.entries = append(out.entries, e)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("benchmark '%s' not found", name)
		}
	}
	return out, nil
}

// Run runs a single benchmark.
func (s *Suite) Run(ctx context.Context, name string, iterations int) Result {
	for _, e := range s.entries {
		if e.name == name {
			return run(ctx, e, iterations)
		}
	}
	err := fmt.Errorf("benchmark '%s' not found", name)
	return Result{Name: name, Err: err, Error: err.Error()}
}

// RunAll runs every benchmark and keeps the results.
func (s *Suite) RunAll(ctx context.Context, iterations int) []Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.results = make([]Result, 0, len(s.entries))
	for _, e := range s.entries {
		s.results = append(s.results, run(ctx, e, iterations))
	}
	return s.results
}

func run(ctx context.Context, e entry, iterations int) Result {
	// Force garbage collection before measuring
	runtime.GC()
	before := GetMemoryStats()

	timer := NewTimer(e.name)
	var err error
	done := 0
	for range iterations {
		if err = ctx.Err(); err != nil {
			break
		}
		if err = e.fn(ctx); err != nil {
			break
		}
		done++
	}
	duration := timer.Stop()

	res := Result{
		Name:         e.name,
		Iterations:   done,
		Duration:     duration,
		MemoryBefore: before,
		MemoryAfter:  GetMemoryStats(),
		Err:          err,
	}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

// Results returns the last RunAll results.
func (s *Suite) Results() []Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results
}

// WriteText prints the last results for humans.
func (s *Suite) WriteText(w io.Writer) error {
	if _, err := fmt.Fprint(w, "\nBenchmark Results:\n==================\n"); err != nil {
		return err
	}
	for _, r := range s.Results() {
		if _, err := fmt.Fprintln(w, r.String()); err != nil {
			return err
		}
	}
	return nil
}

// WriteJSON writes the last results as an indented JSON array.
func (s *Suite) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s.Results())
}
