// Package scheduler implements the parallel search scheduler shared
// across the scheme cores: a fixed-size worker pool for a single
// search. FusedPool fans out and joins on golang.org/x/sync/errgroup;
// its workers return no error, so every worker runs to completion.
// DualPool joins its two stages with sync.WaitGroups.
//
// Sophos keeps derivation (CPU/TDP-bound) and access (I/O-bound) on two
// separate pools (DualPool); Diana fuses them into one (FusedPool) since
// its derivation cost is negligible next to a KV lookup.
package scheduler

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// FusedPool runs fn(workerIndex, workerCount) once per worker; each call
// returns its own postings in a thread-local buffer, joined into a single
// slice without requiring the caller to lock.
type FusedPool struct {
	Workers int
}

// NewFusedPool returns a pool with the given worker count (clamped to at
// least 1).
func NewFusedPool(workers int) *FusedPool {
	if workers <= 0 {
		workers = 1
	}
	return &FusedPool{Workers: workers}
}

// Run invokes fn once per worker index in [0, Workers), collecting each
// worker's returned postings into a single joined slice. All suspension
// happens inside fn (at KV lookups); no cancellation is supported — a
// search always runs to completion.
func (p *FusedPool) Run(fn func(workerIndex, workerCount int) []uint64) []uint64 {
	g, _ := errgroup.WithContext(context.Background())
	results := make([][]uint64, p.Workers)
	for w := 0; w < p.Workers; w++ {
		w := w
		g.Go(func() error {
			results[w] = fn(w, p.Workers)
			return nil
		})
	}
	_ = g.Wait() // fn never returns an error; suspension is only at KV lookups

	var out []uint64
	for _, r := range results {
		out = append(out, r...)
	}
	return out
}

// DualPool separates token-derivation work (CPU/TDP-bound, size D) from KV
// access work (I/O-bound, size A), matching Sophos's search_parallel: a
// fixed number of derivation workers enqueue (token, index) pairs that a
// fixed number of access workers drain and look up.
type DualPool struct {
	DerivationWorkers int
	AccessWorkers     int
}

// NewDualPool returns a pool with the given derivation/access worker
// counts (each clamped to at least 1).
func NewDualPool(derivationWorkers, accessWorkers int) *DualPool {
	if derivationWorkers <= 0 {
		derivationWorkers = 1
	}
	if accessWorkers <= 0 {
		accessWorkers = 1
	}
	return &DualPool{DerivationWorkers: derivationWorkers, AccessWorkers: accessWorkers}
}

// AccessJob is one unit of work handed from a derivation worker to an
// access worker: a derived token awaiting its KV lookup and unmask.
type AccessJob struct {
	Index int
	Token []byte
}

// Run splits derive across DerivationWorkers goroutines (each producing a
// stream of AccessJobs for its shard of [0, total)) and access across
// AccessWorkers goroutines draining a shared job channel, collecting
// postings into a single joined slice via per-worker buffers.
func (p *DualPool) Run(total int, derive func(workerIndex, workerCount int, emit func(AccessJob)), access func(job AccessJob) (uint64, bool)) []uint64 {
	jobs := make(chan AccessJob, p.AccessWorkers*4)

	var derivationWG sync.WaitGroup
	for d := 0; d < p.DerivationWorkers; d++ {
		d := d
		derivationWG.Add(1)
		go func() {
			defer derivationWG.Done()
			derive(d, p.DerivationWorkers, func(job AccessJob) {
				jobs <- job
			})
		}()
	}
	go func() {
		derivationWG.Wait()
		close(jobs)
	}()

	results := make([][]uint64, p.AccessWorkers)
	var accessWG sync.WaitGroup
	for a := 0; a < p.AccessWorkers; a++ {
		a := a
		accessWG.Add(1)
		go func() {
			defer accessWG.Done()
			var local []uint64
			for job := range jobs {
				if ix, ok := access(job); ok {
					local = append(local, ix)
				}
			}
			results[a] = local
		}()
	}
	accessWG.Wait()

	var out []uint64
	for _, r := range results {
		out = append(out, r...)
	}
	return out
}
