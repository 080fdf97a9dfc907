// Package analysis runs the liveness analyses over whole programs and summarizes the results as Report(s).
package analysis

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/gpuforge/shaderlive/internal/ir"
	"github.com/gpuforge/shaderlive/internal/liveapi"
	"github.com/gpuforge/shaderlive/internal/liveness"
)

// Analyze validates and analyzes every function of funcs according to cfg, which defaults to NewConfig when nil.
// Functions are independent, so up to cfg.Concurrency() of them are analyzed at the same time.
//
// The returned reports are in the order of funcs. The first validation error, or ctx's error if it is done before
// every function was analyzed, is returned instead.
func Analyze(ctx context.Context, cfg *Config, funcs []*ir.Function) ([]*Report, error) {
	if cfg == nil {
		cfg = NewConfig()
	}
	if len(funcs) == 0 {
		return nil, ctx.Err()
	}

	reports := make([]*Report, len(funcs))
	// Next-use records are recycled between the functions a goroutine analyzes.
	scratches := sync.Pool{New: func() any { return new(liveness.NextUseScratch) }}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, min(cfg.concurrency, len(funcs))))
	for i, fn := range funcs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := fn.Validate(); err != nil {
				return fmt.Errorf("invalid function #%d: %w", i, err)
			}
			scratch := scratches.Get().(*liveness.NextUseScratch)
			reports[i] = newReport(cfg, fn, scratch)
			scratches.Put(scratch)
			if liveapi.PressureLoggingEnabled {
				fmt.Printf("%s: %s max live %s\n", fn.Name, cfg.kind, FormatCounts(reports[i].MaxLive))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}
