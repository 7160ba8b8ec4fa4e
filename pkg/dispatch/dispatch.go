package dispatch

import (
	"fmt"
	"sync"

	rferrors "github.com/vnykmshr/rowflow/pkg/common/errors"
	"github.com/vnykmshr/rowflow/pkg/partition"
	"github.com/vnykmshr/rowflow/pkg/pipeline"
	"github.com/vnykmshr/rowflow/pkg/streaming/channel"
)

// Pattern is how the copies of two connected stages are wired.
type Pattern int

const (
	OneToOne Pattern = iota
	OneToMany
	ManyToOne
	ManyToMany
	CrossProduct
)

func (p Pattern) String() string {
	switch p {
	case OneToOne:
		return "1:1"
	case OneToMany:
		return "1:N"
	case ManyToOne:
		return "N:1"
	case ManyToMany:
		return "N:N"
	default:
		return "N:M"
	}
}

// Classify picks the wiring pattern for p producer copies feeding c
// consumer copies.
func Classify(p, c int, repartitioning bool) Pattern {
	switch {
	case p == 1 && c == 1:
		return OneToOne
	case p == 1:
		return OneToMany
	case c == 1:
		return ManyToOne
	case p == c && !repartitioning:
		return ManyToMany
	default:
		return CrossProduct
	}
}

// Repartitioning returns the method rows must be repartitioned with on
// the hop from prev to next, or partition.None.
func Repartitioning(prev, next *pipeline.StageMeta) partition.Method {
	if !next.Partitioning.IsPartitioned() {
		return partition.None
	}
	if !prev.Partitioning.IsPartitioned() || !prev.Partitioning.Equal(next.Partitioning) {
		return next.Partitioning.Method
	}
	return partition.None
}

// Key identifies the channel between two stage copies.
type Key struct {
	From     string
	FromCopy int
	To       string
	ToCopy   int
}

func (k Key) String() string {
	return fmt.Sprintf("%s.%d - %s.%d", k.From, k.FromCopy, k.To, k.ToCopy)
}

// Registry holds channels by key.
type Registry struct {
	mu       sync.RWMutex
	channels map[Key]channel.RowChannel
	order    []Key
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{channels: make(map[Key]channel.RowChannel)}
}

// Add registers ch under k. An existing channel for k is kept.
func (r *Registry) Add(k Key, ch channel.RowChannel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.channels[k]; ok {
		return false
	}
	r.channels[k] = ch
	r.order = append(r.order, k)
	return true
}

// Get returns the channel registered under k.
func (r *Registry) Get(k Key) (channel.RowChannel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[k]
	return ch, ok
}

// Len returns the number of channels.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}

// All returns every channel in registration order.
func (r *Registry) All() []channel.RowChannel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]channel.RowChannel, len(r.order))
	for i, k := range r.order {
		all[i] = r.channels[k]
	}
	return all
}

// Dispatcher allocates and wires the channels of one definition.
type Dispatcher struct {
	def      *pipeline.Definition
	reg      *Registry
	capacity int
	server   string
}

// New creates a Dispatcher for def. Channels get def.ChannelCapacity().
func New(def *pipeline.Definition) *Dispatcher {
	return &Dispatcher{
		def:      def,
		reg:      NewRegistry(),
		capacity: def.ChannelCapacity(),
		server:   def.SlaveServer,
	}
}

// Registry returns the channel registry.
func (d *Dispatcher) Registry() *Registry {
	return d.reg
}

// Pattern returns the wiring pattern of the hop from prev to next.
func (d *Dispatcher) Pattern(prev, next *pipeline.StageMeta) Pattern {
	return Classify(prev.CopyCount(), next.CopyCount(), Repartitioning(prev, next) != partition.None)
}

// Allocate creates the channels for every enabled hop.
func (d *Dispatcher) Allocate() error {
	for i := range d.def.Stages {
		prev := &d.def.Stages[i]
		for _, next := range d.def.NextStages(prev.Name) {
			if prev.Virtual || next.Virtual {
				continue
			}
			for _, k := range d.hopKeys(prev, next) {
				ch, err := channel.NewWithConfig(channel.Config{
					Capacity:    d.capacity,
					Origin:      channel.Endpoint{Stage: k.From, Copy: k.FromCopy, Server: d.server},
					Destination: channel.Endpoint{Stage: k.To, Copy: k.ToCopy, Server: d.server},
				})
				if err != nil {
					return err
				}
				d.reg.Add(k, ch)
			}
		}
	}
	return nil
}

func (d *Dispatcher) hopKeys(prev, next *pipeline.StageMeta) []Key {
	p, c := prev.CopyCount(), next.CopyCount()
	var keys []Key
	switch d.Pattern(prev, next) {
	case OneToOne:
		keys = append(keys, Key{prev.Name, 0, next.Name, 0})
	case OneToMany:
		for nc := 0; nc < c; nc++ {
			keys = append(keys, Key{prev.Name, 0, next.Name, nc})
		}
	case ManyToOne:
		for pc := 0; pc < p; pc++ {
			keys = append(keys, Key{prev.Name, pc, next.Name, 0})
		}
	case ManyToMany:
		for i := 0; i < p; i++ {
			keys = append(keys, Key{prev.Name, i, next.Name, i})
		}
	case CrossProduct:
		for pc := 0; pc < p; pc++ {
			for nc := 0; nc < c; nc++ {
				keys = append(keys, Key{prev.Name, pc, next.Name, nc})
			}
		}
	}
	return keys
}

// Wire returns the input and output channels of copy copyNr of stage.
func (d *Dispatcher) Wire(stage string, copyNr int) (inputs, outputs []channel.RowChannel, err error) {
	self, ok := d.def.FindStage(stage)
	if !ok {
		return nil, nil, fmt.Errorf("%w: unknown stage %q", rferrors.ErrInvalidConfiguration, stage)
	}

	for _, prev := range d.def.PrevStages(stage) {
		var keys []Key
		switch d.Pattern(prev, self) {
		case OneToOne:
			keys = []Key{{prev.Name, 0, stage, 0}}
		case OneToMany:
			keys = []Key{{prev.Name, 0, stage, copyNr}}
		case ManyToOne:
			for pc := 0; pc < prev.CopyCount(); pc++ {
				keys = append(keys, Key{prev.Name, pc, stage, 0})
			}
		case ManyToMany:
			keys = []Key{{prev.Name, copyNr, stage, copyNr}}
		case CrossProduct:
			for pc := 0; pc < prev.CopyCount(); pc++ {
				keys = append(keys, Key{prev.Name, pc, stage, copyNr})
			}
		}
		chs, err := d.lookup(keys, prev.Virtual || self.Virtual)
		if err != nil {
			return nil, nil, err
		}
		inputs = append(inputs, chs...)
	}

	for _, next := range d.def.NextStages(stage) {
		var keys []Key
		switch d.Pattern(self, next) {
		case OneToOne:
			keys = []Key{{stage, 0, next.Name, 0}}
		case OneToMany:
			for nc := 0; nc < next.CopyCount(); nc++ {
				keys = append(keys, Key{stage, 0, next.Name, nc})
			}
		case ManyToOne:
			keys = []Key{{stage, copyNr, next.Name, 0}}
		case ManyToMany:
			keys = []Key{{stage, copyNr, next.Name, copyNr}}
		case CrossProduct:
			for nc := 0; nc < next.CopyCount(); nc++ {
				keys = append(keys, Key{stage, copyNr, next.Name, nc})
			}
		}
		chs, err := d.lookup(keys, self.Virtual || next.Virtual)
		if err != nil {
			return nil, nil, err
		}
		outputs = append(outputs, chs...)
	}
	return inputs, outputs, nil
}

func (d *Dispatcher) lookup(keys []Key, virtual bool) ([]channel.RowChannel, error) {
	chs := make([]channel.RowChannel, 0, len(keys))
	for _, k := range keys {
		ch, ok := d.reg.Get(k)
		if !ok {
			if virtual {
				continue
			}
			return nil, fmt.Errorf("%w: %s", rferrors.ErrMissingChannel, k)
		}
		chs = append(chs, ch)
	}
	return chs, nil
}
