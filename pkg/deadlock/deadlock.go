package deadlock

import (
	"fmt"
	"sync"
	"time"

	rferrors "github.com/vnykmshr/rowflow/pkg/common/errors"
	"github.com/vnykmshr/rowflow/pkg/common/validation"
	"github.com/vnykmshr/rowflow/pkg/streaming/channel"
)

// Node is the view of a running stage copy the detector needs.
type Node interface {
	Name() string
	CopyNr() int
	InputChannels() []channel.RowChannel
	OutputChannels() []channel.RowChannel
	LinesRead() int64
}

// Topology gives access to every copy of a run and the hop order.
type Topology interface {
	Nodes() []Node
	// IsBefore reports whether stage downstream is reachable from upstream.
	IsBefore(upstream, downstream string) bool
}

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Config configures a Detector.
type Config struct {
	// CheckInterval is the minimum time between the two observations that
	// confirm a deadlock.
	CheckInterval time.Duration

	// Clock is used for the interval. Defaults to the wall clock.
	Clock Clock
}

// DefaultConfig returns a Config checking once per second.
func DefaultConfig() Config {
	return Config{CheckInterval: time.Second}
}

// Error reports a confirmed deadlock. It wraps ErrDeadlock.
type Error struct {
	Upstream     string
	UpstreamCopy int
	Stalled      string
	StalledCopy  int
}

func (e *Error) Error() string {
	return fmt.Sprintf("a deadlock was detected between stages %q (copy %d) and %q (copy %d): "+
		"both are waiting for each other because a series of row buffers filled up",
		e.Upstream, e.UpstreamCopy, e.Stalled, e.StalledCopy)
}

func (e *Error) Unwrap() error {
	return rferrors.ErrDeadlock
}

type observation struct {
	upstream     string
	upstreamCopy int
	upstreamRead int64
	stalledRead  int64
	at           time.Time
}

func (o observation) same(other observation) bool {
	return o.upstream == other.upstream &&
		o.upstreamCopy == other.upstreamCopy &&
		o.upstreamRead == other.upstreamRead &&
		o.stalledRead == other.stalledRead
}

// Detector confirms stalls for one stalled copy.
type Detector struct {
	topo  Topology
	cfg   Config
	mu    sync.Mutex
	prev  *observation
	count int64
}

// New creates a Detector over topo.
func New(topo Topology, cfg Config) (*Detector, error) {
	if err := validation.ValidateNotNil("deadlock", "Topology", topo); err != nil {
		return nil, err
	}
	if err := validation.ValidatePositiveDuration("deadlock", "CheckInterval", cfg.CheckInterval); err != nil {
		return nil, err
	}
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}
	return &Detector{topo: topo, cfg: cfg}, nil
}

// Check inspects the run on behalf of stalled. It returns an *Error once
// the same blocking upstream copy has been seen twice without progress.
func (d *Detector) Check(stalled Node) error {
	now := d.cfg.Clock.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.prev != nil && now.Sub(d.prev.at) < d.cfg.CheckInterval {
		return nil
	}
	d.count++

	if !hasEmptyInput(stalled) {
		d.prev = nil
		return nil
	}
	up := d.findBlocking(stalled)
	if up == nil {
		d.prev = nil
		return nil
	}

	obs := observation{
		upstream:     up.Name(),
		upstreamCopy: up.CopyNr(),
		upstreamRead: up.LinesRead(),
		stalledRead:  stalled.LinesRead(),
		at:           now,
	}
	if d.prev != nil && d.prev.same(obs) {
		return &Error{
			Upstream:     obs.upstream,
			UpstreamCopy: obs.upstreamCopy,
			Stalled:      stalled.Name(),
			StalledCopy:  stalled.CopyNr(),
		}
	}
	d.prev = &obs
	return nil
}

// Checks returns the number of observations made so far.
func (d *Detector) Checks() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count
}

// Reset drops a pending observation.
func (d *Detector) Reset() {
	d.mu.Lock()
	d.prev = nil
	d.mu.Unlock()
}

func (d *Detector) findBlocking(stalled Node) Node {
	for _, n := range d.topo.Nodes() {
		if n.Name() == stalled.Name() && n.CopyNr() == stalled.CopyNr() {
			continue
		}
		if !inputsFull(n) || !outputsSplit(n) {
			continue
		}
		if d.topo.IsBefore(n.Name(), stalled.Name()) {
			return n
		}
	}
	return nil
}

func hasEmptyInput(n Node) bool {
	for _, ch := range n.InputChannels() {
		if channel.IsEmpty(ch) && !ch.IsDone() {
			return true
		}
	}
	return false
}

// inputsFull reports whether n has inputs and every one of them is full.
func inputsFull(n Node) bool {
	inputs := n.InputChannels()
	if len(inputs) == 0 {
		return false
	}
	for _, ch := range inputs {
		if channel.IsEmpty(ch) || !channel.IsFull(ch) {
			return false
		}
	}
	return true
}

// outputsSplit reports whether n has one full and one empty output.
func outputsSplit(n Node) bool {
	var full, empty bool
	for _, ch := range n.OutputChannels() {
		switch {
		case channel.IsFull(ch):
			full = true
		case channel.IsEmpty(ch):
			empty = true
		}
	}
	return full && empty
}
