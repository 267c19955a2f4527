// Package worker bounds how much enhancement work runs at once.
package worker

import (
	"context"
	"sync"

	"github.com/five82/clarify/internal/util"
)

// Semaphore provides a counting semaphore for controlling concurrency.
// It limits how many decoded photos are held in memory at the same time.
type Semaphore struct {
	permits chan struct{}
}

// NewSemaphore creates a new semaphore with the given number of permits.
func NewSemaphore(count int) *Semaphore {
	if count <= 0 {
		count = 1
	}
	s := &Semaphore{
		permits: make(chan struct{}, count),
	}
	for i := 0; i < count; i++ {
		s.permits <- struct{}{}
	}
	return s
}

// Acquire blocks until a permit is free or ctx is done.
func (s *Semaphore) Acquire(ctx context.Context) error {
	select {
	case <-s.permits:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a permit to the semaphore.
func (s *Semaphore) Release() {
	select {
	case s.permits <- struct{}{}:
	default:
		// Semaphore is full, this shouldn't happen in normal use
	}
}

// Available returns the number of free permits.
func (s *Semaphore) Available() int {
	return len(s.permits)
}

// PhotoMemoryBytes estimates the peak memory of enhancing one photo: the
// decoded source, the blurred copy, the sharpened copy and the encoded output.
func PhotoMemoryBytes(width, height uint32) uint64 {
	return uint64(width) * uint64(height) * 4 * 4
}

// CalculatePermits caps the requested concurrency so in-flight photos use at
// most memFraction of available memory. Returns at least 1.
func CalculatePermits(basePermits int, width, height uint32, memFraction float64) int {
	permits := max(basePermits, 1)
	if width == 0 || height == 0 {
		return permits
	}
	memPermits := util.MaxPermitsForMemory(PhotoMemoryBytes(width, height), memFraction)
	if memPermits < permits {
		permits = memPermits
	}
	return permits
}

// Result is the outcome of one item in a batch.
type Result struct {
	Index int
	Err   error
}

// Progress counts finished items in a batch.
type Progress struct {
	Done   int
	Failed int
	Total  int
}

// Percent returns the completion percentage.
func (p Progress) Percent() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Done) / float64(p.Total) * 100
}

// Run calls fn for every index in [0, n) with at most sem's permits running
// concurrently. onDone, if set, is called serially after each item. Results
// are returned in index order. Items not started before ctx is cancelled
// report ctx.Err().
func Run(ctx context.Context, sem *Semaphore, n int, fn func(ctx context.Context, i int) error, onDone func(Result, Progress)) []Result {
	results := make([]Result, n)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		progress = Progress{Total: n}
	)

	finish := func(r Result) {
		mu.Lock()
		defer mu.Unlock()
		results[r.Index] = r
		progress.Done++
		if r.Err != nil {
			progress.Failed++
		}
		if onDone != nil {
			onDone(r, progress)
		}
	}

	for i := 0; i < n; i++ {
		if err := sem.Acquire(ctx); err != nil {
			finish(Result{Index: i, Err: err})
			continue
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer sem.Release()
			finish(Result{Index: i, Err: fn(ctx, i)})
		}(i)
	}
	wg.Wait()
	return results
}
