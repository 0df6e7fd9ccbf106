// Package scheduler fans definiteinit's per-function pass out across a
// worker pool, one goroutine per function, following the same
// errgroup.WithContext/SetLimit shape the teacher's internal/driver uses
// to tokenize and parse files concurrently.
package scheduler

import (
	"context"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"diaudit/internal/air"
	"diaudit/internal/cache"
	"diaudit/internal/definiteinit"
	"diaudit/internal/diag"
	"diaudit/internal/source"
	"diaudit/internal/types"
)

// Options configures one RunModule call.
type Options struct {
	Pass definiteinit.Options
	// Jobs caps the number of functions processed concurrently; <= 0 means
	// runtime.GOMAXPROCS(0).
	Jobs int
	// Cache, when non-nil, is consulted before running a function's pass
	// and updated after: a fingerprint hit skips RunFunction entirely.
	Cache *cache.DiskCache
	Strs  *source.Interner
	Types *types.Interner
}

// Stats aggregates definiteinit.Stats with atomic counters, since every
// function's goroutine adds to the same totals concurrently.
type Stats struct {
	NumLoadsPromoted    atomic.Int64
	NumAssignsRewritten atomic.Int64
	NumDiagnostics      atomic.Int64
	CacheHits           atomic.Int64
}

func (s *Stats) add(o definiteinit.Stats) {
	s.NumLoadsPromoted.Add(int64(o.NumLoadsPromoted))
	s.NumAssignsRewritten.Add(int64(o.NumAssignsRewritten))
	s.NumDiagnostics.Add(int64(o.NumDiagnostics))
}

// RunModule runs definiteinit over every function in m concurrently,
// merging each function's diagnostics into one Bag in a deterministic,
// scheduling-order-independent way (each function gets its own Bag; the
// results are merged and Bag.Sort'd after every goroutine finishes).
func RunModule(ctx context.Context, m *air.Module, oracle definiteinit.TypeOracle, opts Options) (*diag.Bag, *Stats, error) {
	stats := &Stats{}
	bag := diag.NewBag(len(m.Funcs) * opts.Pass.MaxDiagnosticsPerFunction)
	if len(m.Funcs) == 0 {
		return bag, stats, nil
	}

	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	bags := make([]*diag.Bag, len(m.Funcs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(m.Funcs)))

	for i, fn := range m.Funcs {
		g.Go(func(i int, fn *air.Function) func() error {
			return func() error {
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}

				funcBag := diag.NewBag(opts.Pass.MaxDiagnosticsPerFunction)
				bags[i] = funcBag

				if opts.Cache != nil {
					if fp, err := cache.ComputeFingerprint(fn, opts.Strs); err == nil {
						if payload, hit, _ := opts.Cache.Get(fp); hit {
							stats.CacheHits.Add(1)
							stats.NumLoadsPromoted.Add(int64(payload.NumLoadsPromoted))
							stats.NumAssignsRewritten.Add(int64(payload.NumAssignsRewritten))
							stats.NumDiagnostics.Add(int64(payload.NumDiagnostics))
							return nil
						}
					}
				}

				driver := &definiteinit.PassDriver{
					Types:    opts.Types,
					Strs:     opts.Strs,
					Oracle:   oracle,
					Reporter: diag.BagReporter{Bag: funcBag},
					Options:  opts.Pass,
				}
				result := driver.RunFunction(fn)
				stats.add(result)

				if opts.Cache != nil {
					if fp, err := cache.ComputeFingerprint(fn, opts.Strs); err == nil {
						_ = opts.Cache.Put(fp, cache.Payload{
							NumLoadsPromoted:    result.NumLoadsPromoted,
							NumAssignsRewritten: result.NumAssignsRewritten,
							NumDiagnostics:      result.NumDiagnostics,
						})
					}
				}
				return nil
			}
		}(i, fn))
	}

	if err := g.Wait(); err != nil {
		return bag, stats, err
	}

	for _, b := range bags {
		if b != nil {
			bag.Merge(b)
		}
	}
	bag.Sort()
	return bag, stats, nil
}
