package step

import "sync"

// Counters holds the row counters of one copy behind a single mutex, so a
// Snapshot is always consistent across fields.
type Counters struct {
	mu       sync.Mutex
	read     int64
	written  int64
	input    int64
	output   int64
	updated  int64
	skipped  int64
	rejected int64
	errors   int64
}

// CounterSnapshot is a consistent copy of Counters.
type CounterSnapshot struct {
	Read     int64 `json:"read"`
	Written  int64 `json:"written"`
	Input    int64 `json:"input"`
	Output   int64 `json:"output"`
	Updated  int64 `json:"updated"`
	Skipped  int64 `json:"skipped"`
	Rejected int64 `json:"rejected"`
	Errors   int64 `json:"errors"`
}

// Zero reports whether every counter is zero.
func (s CounterSnapshot) Zero() bool {
	return s == CounterSnapshot{}
}

func (c *Counters) add(p *int64, n int64) int64 {
	c.mu.Lock()
	*p += n
	v := *p
	c.mu.Unlock()
	return v
}

func (c *Counters) IncRead() int64    { return c.add(&c.read, 1) }
func (c *Counters) IncWritten() int64 { return c.add(&c.written, 1) }
func (c *Counters) IncInput() int64   { return c.add(&c.input, 1) }
func (c *Counters) IncOutput() int64  { return c.add(&c.output, 1) }
func (c *Counters) IncUpdated() int64 { return c.add(&c.updated, 1) }
func (c *Counters) IncSkipped() int64 { return c.add(&c.skipped, 1) }
func (c *Counters) IncErrors() int64  { return c.add(&c.errors, 1) }

// IncRejected increments the rejected count and returns it together with
// the rows read so far, taken under the same lock.
func (c *Counters) IncRejected() (rejected, read int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejected++
	return c.rejected, c.read
}

// Read returns the rows read so far.
func (c *Counters) Read() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.read
}

// Errors returns the error count.
func (c *Counters) Errors() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errors
}

// Snapshot returns all counters at once.
func (c *Counters) Snapshot() CounterSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CounterSnapshot{
		Read:     c.read,
		Written:  c.written,
		Input:    c.input,
		Output:   c.output,
		Updated:  c.updated,
		Skipped:  c.skipped,
		Rejected: c.rejected,
		Errors:   c.errors,
	}
}
