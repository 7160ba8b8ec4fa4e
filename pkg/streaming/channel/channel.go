package channel

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	rferrors "github.com/vnykmshr/rowflow/pkg/common/errors"
	"github.com/vnykmshr/rowflow/pkg/common/validation"
	"github.com/vnykmshr/rowflow/pkg/row"
)

// Endpoint identifies one side of a channel: a stage copy, optionally
// running on a named cluster server.
type Endpoint struct {
	Stage  string
	Copy   int
	Server string
}

func (e Endpoint) String() string {
	if e.Server != "" {
		return fmt.Sprintf("%s.%d@%s", e.Stage, e.Copy, e.Server)
	}
	return fmt.Sprintf("%s.%d", e.Stage, e.Copy)
}

// RowChannel is a bounded single-producer single-consumer row queue with
// an end-of-stream marker.
type RowChannel interface {
	// Put blocks until the row is accepted, the channel is marked done or
	// ctx ends. The first put binds the channel schema.
	Put(ctx context.Context, schema *row.Schema, r row.Row) error

	// PutWait is Put bounded by timeout. It returns errors.ErrTimeout when
	// the buffer stayed full and errors.ErrChannelDone after MarkDone.
	PutWait(schema *row.Schema, r row.Row, timeout time.Duration) error

	// Get returns the next row without blocking.
	Get() (row.Row, bool)

	// GetWait waits up to timeout for the next row.
	GetWait(timeout time.Duration) (row.Row, bool)

	// MarkDone signals that no more rows will be put. Idempotent.
	MarkDone()

	// IsDone reports whether MarkDone was called. Buffered rows remain
	// readable after the channel is done.
	IsDone() bool

	// Len returns the number of buffered rows.
	Len() int

	// Cap returns the buffer capacity.
	Cap() int

	// Schema returns the bound schema, or nil before the first put.
	Schema() *row.Schema

	Origin() Endpoint
	Destination() Endpoint

	// Name returns "origin - destination".
	Name() string

	// Stats returns channel statistics.
	Stats() Stats
}

// Stats holds statistics about channel traffic.
type Stats struct {
	// PutCount is the number of rows accepted.
	PutCount int64

	// GetCount is the number of rows handed to the consumer.
	GetCount int64

	// BlockedPuts is the number of puts that found the buffer full.
	BlockedPuts int64

	// TimedOutPuts is the number of PutWait calls that gave up.
	TimedOutPuts int64

	// EmptyGets is the number of GetWait calls that returned nothing.
	EmptyGets int64

	// BufferUtilization is the current buffer utilization (0.0 to 1.0).
	BufferUtilization float64
}

// Config holds configuration for a RowChannel.
type Config struct {
	// Capacity is the maximum number of buffered rows.
	Capacity int

	Origin      Endpoint
	Destination Endpoint

	// OnBlock is called when a put finds the buffer full.
	OnBlock func()
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{Capacity: 10000}
}

type rowChannel struct {
	config Config
	rows   chan row.Row

	done     chan struct{}
	doneOnce sync.Once
	isDone   atomic.Bool

	schema atomic.Pointer[row.Schema]

	puts, gets, blocked, timedOut, emptyGets atomic.Int64
}

// New creates a RowChannel with the given capacity between two endpoints.
// A non-positive capacity falls back to the default.
func New(capacity int, origin, destination Endpoint) RowChannel {
	if capacity <= 0 {
		capacity = DefaultConfig().Capacity
	}
	ch, _ := NewWithConfig(Config{Capacity: capacity, Origin: origin, Destination: destination})
	return ch
}

// NewWithConfig creates a RowChannel, validating the configuration.
func NewWithConfig(config Config) (RowChannel, error) {
	if err := validation.ValidatePositive("channel", "capacity", config.Capacity); err != nil {
		return nil, err
	}
	return &rowChannel{
		config: config,
		rows:   make(chan row.Row, config.Capacity),
		done:   make(chan struct{}),
	}, nil
}

func (ch *rowChannel) bind(schema *row.Schema) {
	if schema != nil && ch.schema.Load() == nil {
		ch.schema.CompareAndSwap(nil, schema)
	}
}

// tryPut attempts a non-blocking put; full reports whether the buffer was full.
func (ch *rowChannel) tryPut(schema *row.Schema, r row.Row) (full bool, err error) {
	if ch.isDone.Load() {
		return false, rferrors.ErrChannelDone
	}
	ch.bind(schema)
	select {
	case ch.rows <- r:
		ch.puts.Add(1)
		return false, nil
	default:
	}
	ch.blocked.Add(1)
	if ch.config.OnBlock != nil {
		ch.config.OnBlock()
	}
	return true, nil
}

func (ch *rowChannel) Put(ctx context.Context, schema *row.Schema, r row.Row) error {
	full, err := ch.tryPut(schema, r)
	if err != nil || !full {
		return err
	}
	select {
	case ch.rows <- r:
		ch.puts.Add(1)
		return nil
	case <-ch.done:
		return rferrors.ErrChannelDone
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (ch *rowChannel) PutWait(schema *row.Schema, r row.Row, timeout time.Duration) error {
	full, err := ch.tryPut(schema, r)
	if err != nil || !full {
		return err
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ch.rows <- r:
		ch.puts.Add(1)
		return nil
	case <-ch.done:
		return rferrors.ErrChannelDone
	case <-timer.C:
		ch.timedOut.Add(1)
		return rferrors.ErrTimeout
	}
}

func (ch *rowChannel) Get() (row.Row, bool) {
	select {
	case r := <-ch.rows:
		ch.gets.Add(1)
		return r, true
	default:
		return nil, false
	}
}

func (ch *rowChannel) GetWait(timeout time.Duration) (row.Row, bool) {
	if r, ok := ch.Get(); ok {
		return r, true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case r := <-ch.rows:
		ch.gets.Add(1)
		return r, true
	case <-ch.done:
		// a row may have landed together with the done marker
		if r, ok := ch.Get(); ok {
			return r, true
		}
	case <-timer.C:
	}
	ch.emptyGets.Add(1)
	return nil, false
}

func (ch *rowChannel) MarkDone() {
	ch.doneOnce.Do(func() {
		ch.isDone.Store(true)
		close(ch.done)
	})
}

func (ch *rowChannel) IsDone() bool {
	return ch.isDone.Load()
}

func (ch *rowChannel) Len() int {
	return len(ch.rows)
}

func (ch *rowChannel) Cap() int {
	return cap(ch.rows)
}

func (ch *rowChannel) Schema() *row.Schema {
	return ch.schema.Load()
}

func (ch *rowChannel) Origin() Endpoint {
	return ch.config.Origin
}

func (ch *rowChannel) Destination() Endpoint {
	return ch.config.Destination
}

func (ch *rowChannel) Name() string {
	return ch.config.Origin.String() + " - " + ch.config.Destination.String()
}

func (ch *rowChannel) Stats() Stats {
	return Stats{
		PutCount:          ch.puts.Load(),
		GetCount:          ch.gets.Load(),
		BlockedPuts:       ch.blocked.Load(),
		TimedOutPuts:      ch.timedOut.Load(),
		EmptyGets:         ch.emptyGets.Load(),
		BufferUtilization: float64(len(ch.rows)) / float64(cap(ch.rows)),
	}
}

// IsFull reports whether ch has no free buffer slot.
func IsFull(ch RowChannel) bool {
	return ch.Len() >= ch.Cap()
}

// IsEmpty reports whether ch has no buffered rows.
func IsEmpty(ch RowChannel) bool {
	return ch.Len() == 0
}
