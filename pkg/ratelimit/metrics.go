package ratelimit

import (
	"context"
	"time"

	"github.com/vnykmshr/rowflow/pkg/metrics"
)

// metricsThrottle wraps a Throttle with Prometheus metrics collection.
type metricsThrottle struct {
	Throttle
	stage    string
	registry *metrics.Registry
}

// WithMetrics records wait time and available tokens of t under stage.
// A nil registry returns t unchanged.
func WithMetrics(t Throttle, stage string, registry *metrics.Registry) Throttle {
	if registry == nil {
		return t
	}
	return &metricsThrottle{Throttle: t, stage: stage, registry: registry}
}

func (mt *metricsThrottle) Wait(ctx context.Context) error {
	return mt.WaitN(ctx, 1)
}

func (mt *metricsThrottle) WaitN(ctx context.Context, n int) error {
	start := time.Now()
	err := mt.Throttle.WaitN(ctx, n)
	mt.registry.ThrottleWaitTime.WithLabelValues(mt.stage).Observe(time.Since(start).Seconds())
	mt.registry.ThrottleTokens.WithLabelValues(mt.stage).Set(mt.Throttle.Tokens())
	return err
}
