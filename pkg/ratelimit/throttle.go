package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/vnykmshr/rowflow/pkg/common/errors"
)

// Limit is the number of rows allowed per second. Use Inf for no limit.
type Limit float64

// Inf is the infinite rate limit; it allows all rows.
var Inf = Limit(math.Inf(1))

// Every converts a minimum interval between rows to a Limit.
func Every(interval time.Duration) Limit {
	if interval <= 0 {
		return Inf
	}
	return Limit(time.Second) / Limit(interval)
}

// Throttle paces the rows a stage copy emits using a token bucket. Bursts
// up to Burst rows pass immediately, after which rows are spread at Rate.
type Throttle interface {
	// Allow reports whether a row may pass now. It does not block.
	Allow() bool

	// Wait blocks until a row may pass or ctx is done.
	Wait(ctx context.Context) error

	// WaitN blocks until n rows may pass or ctx is done.
	WaitN(ctx context.Context, n int) error

	// SetRate changes the rate, keeping the burst.
	SetRate(rate Limit)

	// Rate returns the current rate.
	Rate() Limit

	// Burst returns the bucket size.
	Burst() int

	// Tokens returns the number of rows that may currently pass.
	Tokens() float64
}

// Clock provides the current time. It can be mocked for testing.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using the system time.
type SystemClock struct{}

// Now returns the current system time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// Config holds configuration options for creating a new Throttle.
type Config struct {
	// Rate is the number of rows allowed per second.
	Rate Limit

	// Burst is the maximum number of rows that may pass at once.
	// Zero uses one second worth of rows, at least 1.
	Burst int

	// Clock provides the current time. If nil, SystemClock is used.
	Clock Clock

	// InitialTokens is the number of tokens to start with.
	// If negative, starts with full capacity.
	InitialTokens int
}

// BurstFor returns the default burst for rate.
func BurstFor(rate Limit) int {
	if rate == Inf || rate < 1 {
		return 1
	}
	return int(math.Ceil(float64(rate)))
}

type tokenBucket struct {
	mu         sync.Mutex
	limit      Limit
	burst      int
	tokens     float64
	lastUpdate time.Time
	clock      Clock
}

// New creates a throttle passing rowsPerSecond rows per second.
func New(rowsPerSecond float64) (Throttle, error) {
	return NewWithConfig(Config{
		Rate:          Limit(rowsPerSecond),
		InitialTokens: -1,
	})
}

// NewWithConfig creates a throttle from config.
func NewWithConfig(config Config) (Throttle, error) {
	if config.Rate <= 0 {
		return nil, errors.NewValidationError("ratelimit", "rate", config.Rate, "rate must be positive").
			WithHint("leave rowsPerSecond at 0 to disable throttling")
	}
	if config.Burst < 0 {
		return nil, errors.NewValidationError("ratelimit", "burst", config.Burst, "burst cannot be negative").
			WithHint("burst determines how many rows can pass instantly")
	}
	if config.Burst == 0 {
		config.Burst = BurstFor(config.Rate)
	}
	if config.Clock == nil {
		config.Clock = SystemClock{}
	}

	initialTokens := float64(config.InitialTokens)
	if config.InitialTokens < 0 {
		initialTokens = float64(config.Burst)
	}

	return &tokenBucket{
		limit:      config.Rate,
		burst:      config.Burst,
		tokens:     initialTokens,
		lastUpdate: config.Clock.Now(),
		clock:      config.Clock,
	}, nil
}

func (tb *tokenBucket) Allow() bool {
	_, ok := tb.reserveN(tb.clock.Now(), 1, 0)
	return ok
}

func (tb *tokenBucket) Wait(ctx context.Context) error {
	return tb.WaitN(ctx, 1)
}

func (tb *tokenBucket) WaitN(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	maxWait := time.Duration(math.MaxInt64)
	now := tb.clock.Now()
	if deadline, ok := ctx.Deadline(); ok {
		maxWait = deadline.Sub(now)
	}

	delay, ok := tb.reserveN(now, n, maxWait)
	if !ok {
		return context.DeadlineExceeded
	}
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		tb.cancel(n)
		return ctx.Err()
	}
}

func (tb *tokenBucket) SetRate(rate Limit) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.updateTokens(tb.clock.Now())
	tb.limit = rate
}

func (tb *tokenBucket) Rate() Limit {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.limit
}

func (tb *tokenBucket) Burst() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.burst
}

func (tb *tokenBucket) Tokens() float64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.updateTokens(tb.clock.Now())
	return tb.tokens
}

// reserveN takes n tokens and returns how long the caller has to wait for
// them. It takes nothing when the wait would exceed maxWait.
func (tb *tokenBucket) reserveN(now time.Time, n int, maxWait time.Duration) (time.Duration, bool) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if tb.limit == Inf {
		return 0, true
	}

	tb.updateTokens(now)
	if tb.tokens >= float64(n) {
		tb.tokens -= float64(n)
		return 0, true
	}

	missing := float64(n) - tb.tokens
	wait := time.Duration(float64(time.Second) * missing / float64(tb.limit))
	if wait > maxWait {
		return 0, false
	}

	// tokens go negative; later callers queue behind this reservation
	tb.tokens -= float64(n)
	return wait, true
}

func (tb *tokenBucket) updateTokens(now time.Time) {
	if tb.limit == Inf {
		tb.tokens = float64(tb.burst)
		tb.lastUpdate = now
		return
	}

	elapsed := now.Sub(tb.lastUpdate)
	if elapsed <= 0 {
		return
	}

	tb.tokens = math.Min(tb.tokens+elapsed.Seconds()*float64(tb.limit), float64(tb.burst))
	tb.lastUpdate = now
}

func (tb *tokenBucket) cancel(n int) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.updateTokens(tb.clock.Now())
	tb.tokens = math.Min(tb.tokens+float64(n), float64(tb.burst))
}
