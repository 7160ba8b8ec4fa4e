/*
Package ratelimit throttles the rows a stage copy emits.

A stage configured with rowsPerSecond gets a token bucket Throttle. Every
row waits for a token before it is written, so short bursts pass at once
and longer runs settle at the configured rate:

	th, err := ratelimit.New(500) // 500 rows/sec, burst of 500
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err := th.Wait(ctx); err != nil {
			return err // ctx canceled, e.g. the run was stopped
		}
		// write r
	}

Wait honours the context deadline: when the required wait exceeds it,
Wait fails immediately with context.DeadlineExceeded instead of sleeping.

WithMetrics adds wait time and token gauges from package metrics.
*/
package ratelimit
