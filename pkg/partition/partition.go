package partition

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	rferrors "github.com/vnykmshr/rowflow/pkg/common/errors"
	"github.com/vnykmshr/rowflow/pkg/row"
)

// Method is how a stage's input is partitioned.
type Method int

const (
	None Method = iota
	Mirror
	Special
)

func (m Method) String() string {
	switch m {
	case Mirror:
		return "mirror"
	case Special:
		return "special"
	default:
		return "none"
	}
}

// ParseMethod maps a method name to a Method. The empty string means None.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return None, nil
	case "mirror":
		return Mirror, nil
	case "special":
		return Special, nil
	}
	return None, rferrors.NewValidationError("partition", "method", s, "unknown partitioning method").
		WithHint("use none, mirror or special")
}

// MarshalText implements encoding.TextMarshaler.
func (m Method) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Method) UnmarshalText(b []byte) error {
	v, err := ParseMethod(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Schema names a set of partitions.
type Schema struct {
	Name         string   `json:"name"`
	PartitionIDs []string `json:"partitionIds"`
}

// Meta is the partitioning configuration of one stage.
type Meta struct {
	Method        Method   `json:"method"`
	Schema        Schema   `json:"schema"`
	PartitionerID string   `json:"partitioner,omitempty"`
	Fields        []string `json:"fields,omitempty"`
}

// IsPartitioned reports whether the stage uses any partitioning method.
func (m Meta) IsPartitioned() bool {
	return m.Method != None
}

// Equal reports whether a and b partition rows identically, in which case
// rows need no repartitioning between them.
func (m Meta) Equal(o Meta) bool {
	if m.Method != o.Method || !strings.EqualFold(m.Schema.Name, o.Schema.Name) {
		return false
	}
	if m.PartitionerID != o.PartitionerID || len(m.Fields) != len(o.Fields) {
		return false
	}
	for i := range m.Fields {
		if !strings.EqualFold(m.Fields[i], o.Fields[i]) {
			return false
		}
	}
	return true
}

// Partitioner maps rows to partition numbers.
type Partitioner interface {
	// PartitionOf returns a partition number in [0, NrPartitions()).
	PartitionOf(schema *row.Schema, r row.Row) (int, error)

	// NrPartitions returns the partition count.
	NrPartitions() int
}

// Factory creates a Partitioner for a stage's partitioning configuration.
type Factory func(meta Meta) (Partitioner, error)

// Registry maps partitioner ids to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry holding the built-in partitioners.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("mod", newModPartitioner)
	r.Register("hash", newHashPartitioner)
	return r
}

// Register adds or replaces a factory.
func (r *Registry) Register(id string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToLower(id)] = f
}

// IDs returns the registered ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// New creates the partitioner configured by meta. An empty partitioner id
// selects "mod".
func (r *Registry) New(meta Meta) (Partitioner, error) {
	id := strings.ToLower(meta.PartitionerID)
	if id == "" {
		id = "mod"
	}
	r.mu.RLock()
	f, ok := r.factories[id]
	r.mu.RUnlock()
	if !ok {
		return nil, rferrors.NewValidationError("partition", "partitioner", meta.PartitionerID, "unknown partitioner").
			WithHint("registered partitioners: " + strings.Join(r.IDs(), ", "))
	}
	if len(meta.Schema.PartitionIDs) == 0 {
		return nil, rferrors.NewValidationError("partition", "schema", meta.Schema.Name, "partition schema has no partitions")
	}
	return f(meta)
}

// LocalTargets returns the output channel indexes a row with partition
// number nr goes to when partCount partitions feed nextStages downstream
// stages: nr + i*partCount for each next stage i.
func LocalTargets(nr, partCount, nextStages int) []int {
	idx := make([]int, nextStages)
	for i := range idx {
		idx[i] = nr + i*partCount
	}
	return idx
}

const targetSuffix = " (target)"

// TargetSchemaName returns the name a clustered run gives the partition
// schema of a target stage.
func TargetSchemaName(name string) string {
	return name + targetSuffix
}

// SchemaNameFromTarget strips the suffix added by TargetSchemaName.
func SchemaNameFromTarget(name string) string {
	return strings.TrimSuffix(name, targetSuffix)
}

func checkRange(nr, n int) (int, error) {
	if nr < 0 || nr >= n {
		return 0, fmt.Errorf("partition %d out of range [0, %d)", nr, n)
	}
	return nr, nil
}
