// Package distribute spreads the rows of an unpartitioned stage over its
// output channels when the stage runs in distribution mode.
//
// A Distributor is created per stage copy, so strategies may keep state
// such as a round-robin cursor without locking.
package distribute

import (
	"sort"
	"strings"
	"sync"

	rferrors "github.com/vnykmshr/rowflow/pkg/common/errors"
	"github.com/vnykmshr/rowflow/pkg/row"
	"github.com/vnykmshr/rowflow/pkg/streaming/channel"
)

// Outputs is the view of a stage copy a Distributor sends through.
type Outputs interface {
	// OutputChannels returns the current outputs, excluding the error channel.
	OutputChannels() []channel.RowChannel

	// PutRowTo sends the row to one output, blocking under backpressure.
	PutRowTo(schema *row.Schema, r row.Row, ch channel.RowChannel) error
}

// Distributor chooses the output channel for each row.
type Distributor interface {
	Code() string
	Distribute(schema *row.Schema, r row.Row, out Outputs) error
}

// RoundRobin sends each row to the next output in turn.
type RoundRobin struct {
	next int
}

func (d *RoundRobin) Code() string { return "round-robin" }

func (d *RoundRobin) Distribute(schema *row.Schema, r row.Row, out Outputs) error {
	outputs := out.OutputChannels()
	if len(outputs) == 0 {
		return nil
	}
	if d.next >= len(outputs) {
		d.next = 0
	}
	ch := outputs[d.next]
	d.next++
	return out.PutRowTo(schema, r, ch)
}

// LoadBalance sends each row to the least occupied output, preferring the
// lowest index on ties.
type LoadBalance struct{}

func (LoadBalance) Code() string { return "load-balance" }

func (LoadBalance) Distribute(schema *row.Schema, r row.Row, out Outputs) error {
	outputs := out.OutputChannels()
	if len(outputs) == 0 {
		return nil
	}
	best := outputs[0]
	for _, ch := range outputs[1:] {
		if ch.Len() < best.Len() {
			best = ch
		}
	}
	return out.PutRowTo(schema, r, best)
}

// Factory creates a fresh Distributor for one stage copy.
type Factory func() Distributor

// Registry maps distribution codes to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry holding the built-in strategies.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("round-robin", func() Distributor { return &RoundRobin{} })
	r.Register("load-balance", func() Distributor { return LoadBalance{} })
	return r
}

// Register adds or replaces a strategy.
func (r *Registry) Register(code string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToLower(code)] = f
}

// New creates the strategy registered under code. An empty code selects
// round-robin.
func (r *Registry) New(code string) (Distributor, error) {
	key := strings.ToLower(code)
	if key == "" {
		key = "round-robin"
	}
	r.mu.RLock()
	f, ok := r.factories[key]
	r.mu.RUnlock()
	if !ok {
		return nil, rferrors.NewValidationError("distribute", "rowDistribution", code, "unknown distribution").
			WithHint("registered: " + strings.Join(r.codes(), ", "))
	}
	return f(), nil
}

func (r *Registry) codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codes := make([]string, 0, len(r.factories))
	for c := range r.factories {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}
