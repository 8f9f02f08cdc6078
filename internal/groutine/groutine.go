// Package groutine starts named goroutines so that pprof profiles and logs can
// tell the work queue, scheduler and radio goroutines apart.
package groutine

import (
	"context"
	"runtime/pprof"
)

// Go starts fn on a new goroutine labelled with name.
//
//	groutine.Go(ctx, "dispatch-main", func(ctx context.Context) {
//	    // work
//	})
//
// If parentCtx is nil, context.Background() is used.
func Go(parentCtx context.Context, name string, fn func(ctx context.Context)) {
	if parentCtx == nil {
		parentCtx = context.Background()
	}

	labels := pprof.Labels("goroutine_name", name)

	go pprof.Do(parentCtx, labels, fn)
}
