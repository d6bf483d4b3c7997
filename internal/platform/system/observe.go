package system

import (
	"context"
	"time"
)

// ObservationHooks captures optional callbacks around an operation's lifetime,
// used to wire metrics/tracing into orchestrator, sharding, and sync operations
// without each call site hardcoding a specific metrics backend.
type ObservationHooks struct {
	OnStart    func(ctx context.Context, meta map[string]string)
	OnComplete func(ctx context.Context, meta map[string]string, err error, duration time.Duration)
}

var NoopObservationHooks = ObservationHooks{}

// StartObservation fires OnStart and returns a completion callback for OnComplete.
func StartObservation(ctx context.Context, hooks ObservationHooks, meta map[string]string) func(error) {
	if hooks.OnStart != nil {
		hooks.OnStart(ctx, meta)
	}
	start := time.Now()
	return func(err error) {
		if hooks.OnComplete != nil {
			hooks.OnComplete(ctx, meta, err, time.Since(start))
		}
	}
}
