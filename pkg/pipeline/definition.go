package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/vnykmshr/rowflow/pkg/cluster"
	"github.com/vnykmshr/rowflow/pkg/partition"
)

// DefaultBufferSize is the channel capacity used when a definition sets none.
const DefaultBufferSize = 10000

// Definition is a complete pipeline graph.
type Definition struct {
	Name   string      `json:"name"`
	Stages []StageMeta `json:"stages"`
	Hops   []Hop       `json:"hops"`

	// BufferSize is the capacity of every local channel.
	BufferSize int `json:"bufferSize,omitempty"`

	// SafeMode makes every stage compare the layout of each row it reads
	// against the first row it read.
	SafeMode bool `json:"safeMode,omitempty"`

	// AllowEmptyFieldNamesAndTypes disables the blank-name and
	// undefined-type check on every put.
	AllowEmptyFieldNamesAndTypes bool `json:"allowEmptyFieldNamesAndTypes,omitempty"`

	// SlaveServer names the cluster server this definition runs on.
	SlaveServer string `json:"slaveServer,omitempty"`

	// Distribution is the clustered partition distribution table.
	Distribution []cluster.Entry `json:"distribution,omitempty"`
}

// StageMeta configures one stage.
type StageMeta struct {
	Name string `json:"name"`

	// Type selects the processor implementing the stage.
	Type string `json:"type"`

	// Copies is the number of parallel copies. Zero means one. Partitioned
	// stages run one copy per partition.
	Copies int `json:"copies,omitempty"`

	// Distribute switches output from copying every row to every output
	// to handing each row to one output.
	Distribute bool `json:"distribute,omitempty"`

	// RowDistribution selects the distribution strategy. Empty means round-robin.
	RowDistribution string `json:"rowDistribution,omitempty"`

	Partitioning partition.Meta `json:"partitioning"`

	ErrorHandling *ErrorHandling `json:"errorHandling,omitempty"`

	// RowsPerSecond throttles PutRow when positive.
	RowsPerSecond float64 `json:"rowsPerSecond,omitempty"`

	// Virtual stages have no channels of their own; missing channels
	// towards them are not an error.
	Virtual bool `json:"virtual,omitempty"`

	RemoteInputs  []RemoteStep `json:"remoteInputs,omitempty"`
	RemoteOutputs []RemoteStep `json:"remoteOutputs,omitempty"`

	// Options is passed to the processor factory untouched.
	Options json.RawMessage `json:"options,omitempty"`
}

// CopyCount returns the number of copies that run for the stage.
func (s StageMeta) CopyCount() int {
	if s.Partitioning.IsPartitioned() && len(s.Partitioning.Schema.PartitionIDs) > 0 {
		return len(s.Partitioning.Schema.PartitionIDs)
	}
	if s.Copies <= 0 {
		return 1
	}
	return s.Copies
}

// PartitionID returns the partition served by copy copyNr, or "".
func (s StageMeta) PartitionID(copyNr int) string {
	ids := s.Partitioning.Schema.PartitionIDs
	if !s.Partitioning.IsPartitioned() || copyNr < 0 || copyNr >= len(ids) {
		return ""
	}
	return ids[copyNr]
}

// DecodeOptions unmarshals the stage options into v. Empty options leave v untouched.
func (s StageMeta) DecodeOptions(v any) error {
	if len(s.Options) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(s.Options))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("stage %q options: %w", s.Name, err)
	}
	return nil
}

// ErrorHandling routes rejected rows to a target stage and bounds how
// many may be rejected.
type ErrorHandling struct {
	// Target is the stage that receives error rows.
	Target string `json:"target"`

	// Names of the diagnostic fields appended to each error row. Empty
	// names are not appended.
	NrErrorsField     string `json:"nrErrorsField,omitempty"`
	DescriptionsField string `json:"descriptionsField,omitempty"`
	FieldsField       string `json:"fieldsField,omitempty"`
	CodesField        string `json:"codesField,omitempty"`

	// MaxErrors aborts the run once more rows than this are rejected. Zero disables.
	MaxErrors int64 `json:"maxErrors,omitempty"`

	// MaxPercentErrors aborts the run once the rejected share of read rows
	// exceeds this percentage. Zero disables.
	MaxPercentErrors int `json:"maxPercentErrors,omitempty"`

	// MinPercentRows is the number of rows read before the percentage check applies.
	MinPercentRows int64 `json:"minPercentRows,omitempty"`
}

// RemoteStep describes one cross-process stream of a stage.
type RemoteStep struct {
	// Stage, Server and Copy name the peer stage copy.
	Stage  string `json:"stage"`
	Server string `json:"server,omitempty"`
	Copy   int    `json:"copy,omitempty"`

	// LocalCopy is the copy of this stage the stream belongs to.
	LocalCopy int `json:"localCopy,omitempty"`

	// Addr is the listen address for outputs and the dial address for inputs.
	Addr string `json:"addr"`
}

// Hop is a directed edge between two stages.
type Hop struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Disabled bool   `json:"disabled,omitempty"`
}

// Load decodes a JSON definition. Unknown fields are rejected.
func Load(r io.Reader) (*Definition, error) {
	var def Definition
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("decode pipeline: %w", err)
	}
	return &def, nil
}

// LoadFile reads and decodes a JSON definition from path.
func LoadFile(path string) (*Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

// ChannelCapacity returns BufferSize, or DefaultBufferSize when unset.
func (d *Definition) ChannelCapacity() int {
	if d.BufferSize <= 0 {
		return DefaultBufferSize
	}
	return d.BufferSize
}

// DistributionTable builds the clustered distribution table.
func (d *Definition) DistributionTable() *cluster.DistributionTable {
	return cluster.NewDistributionTable(d.Distribution...)
}
