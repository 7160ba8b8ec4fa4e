package step

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vnykmshr/rowflow/pkg/cluster"
	rferrors "github.com/vnykmshr/rowflow/pkg/common/errors"
	"github.com/vnykmshr/rowflow/pkg/dispatch"
	"github.com/vnykmshr/rowflow/pkg/distribute"
	"github.com/vnykmshr/rowflow/pkg/partition"
	"github.com/vnykmshr/rowflow/pkg/row"
	"github.com/vnykmshr/rowflow/pkg/streaming/channel"
)

// sendMode is how PutRow spreads a row over the outputs.
type sendMode int

const (
	sendCopy sendMode = iota
	sendDistribute
	sendMirror
	sendSpecial
)

func (m sendMode) String() string {
	switch m {
	case sendDistribute:
		return "distribute"
	case sendMirror:
		return "mirror"
	case sendSpecial:
		return "partition"
	default:
		return "copy"
	}
}

type router struct {
	mode        sendMode
	distributor distribute.Distributor

	partitioner partition.Partitioner
	nextMeta    partition.Meta
	nextCount   int
	table       *cluster.DistributionTable

	// targets holds the outputs of each partition, resolved on first use.
	targets [][]channel.RowChannel
}

// initRouting picks the send mode from the partitioning of the next
// stages and the distribution settings of this one.
func (c *Copy) initRouting() error {
	var target string
	if eh := c.meta.ErrorHandling; eh != nil {
		target = eh.Target
	}

	var rt router
	method := partition.None
	unpartitioned := ""
	for _, next := range c.def.NextStages(c.Name()) {
		if strings.EqualFold(next.Name, target) {
			continue
		}
		m := dispatch.Repartitioning(c.meta, next)
		if m == partition.None {
			unpartitioned = next.Name
			continue
		}
		if rt.nextCount > 0 && !rt.nextMeta.Equal(next.Partitioning) {
			return fmt.Errorf("%w: next stages of %q use different partitioning",
				rferrors.ErrInvalidConfiguration, c.Name())
		}
		method = m
		rt.nextMeta = next.Partitioning
		rt.nextCount++
	}
	if method == partition.Special && unpartitioned != "" {
		return fmt.Errorf("%w: stage %q repartitions rows but %q is not partitioned the same way",
			rferrors.ErrInvalidConfiguration, c.Name(), unpartitioned)
	}

	switch method {
	case partition.Special:
		p, err := c.cfg.Partitioners.New(rt.nextMeta)
		if err != nil {
			return err
		}
		rt.mode = sendSpecial
		rt.partitioner = p
		if table := c.def.DistributionTable(); c.def.SlaveServer != "" && table.Len() > 0 {
			rt.table = table
		}
	case partition.Mirror:
		rt.mode = sendMirror
	default:
		if c.meta.Distribute {
			d, err := c.cfg.Distributors.New(c.meta.RowDistribution)
			if err != nil {
				return err
			}
			rt.mode = sendDistribute
			rt.distributor = d
		}
	}
	c.router = rt
	c.log.Debug("routing initialized", "mode", rt.mode.String())
	return nil
}

// PutRow routes r to the outputs. Rows-written grows by one per call, no
// matter how many outputs receive the row.
func (c *Copy) PutRow(schema *row.Schema, r row.Row) error {
	if err := c.checkSchema(schema); err != nil {
		return err
	}
	if !c.beforePut() {
		return nil
	}

	var err error
	switch c.router.mode {
	case sendSpecial:
		err = c.putPartitioned(schema, r)
	case sendDistribute:
		outputs := c.liveOutputs()
		if len(outputs) == 1 {
			err = c.send(outputs[0], schema, r)
		} else {
			err = c.router.distributor.Distribute(schema, r, outputView{c})
		}
	default:
		err = c.putAll(c.liveOutputs(), schema, r)
	}
	if err != nil {
		return discarded(err)
	}
	c.written(schema, r)
	return nil
}

// PutRowTo writes r to ch only.
func (c *Copy) PutRowTo(schema *row.Schema, r row.Row, ch channel.RowChannel) error {
	if err := c.checkSchema(schema); err != nil {
		return err
	}
	if !c.beforePut() {
		return nil
	}
	if err := c.send(ch, schema, r); err != nil {
		return discarded(err)
	}
	c.written(schema, r)
	return nil
}

// discarded maps the stop of a halted copy to a silently dropped row.
func discarded(err error) error {
	if errors.Is(err, rferrors.ErrStopped) {
		return nil
	}
	return err
}

// FindOutputChannel returns the output towards stage to, which must run
// in a single copy.
func (c *Copy) FindOutputChannel(to string) (channel.RowChannel, error) {
	next, ok := c.def.FindStage(to)
	if !ok {
		return nil, fmt.Errorf("%w: unknown stage %q", rferrors.ErrInvalidConfiguration, to)
	}
	if next.CopyCount() > 1 {
		return nil, fmt.Errorf("%w: stage %q runs in %d copies, write to it with PutRow",
			rferrors.ErrInvalidConfiguration, to, next.CopyCount())
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, ch := range c.outputs {
		if strings.EqualFold(ch.Destination().Stage, to) {
			return ch, nil
		}
	}
	return nil, fmt.Errorf("%w: no output towards %q", rferrors.ErrMissingChannel, to)
}

func (c *Copy) checkSchema(schema *row.Schema) error {
	if c.def.AllowEmptyFieldNamesAndTypes {
		return nil
	}
	if err := schema.CheckNamesAndTypes(); err != nil {
		se := rferrors.NewStageError(c.Name(), c.CopyNr(), rferrors.Configuration, err)
		c.fail(se)
		return se
	}
	return nil
}

// beforePut waits out a pause and the throttle. It reports false when the
// row must be discarded because the copy was stopped.
func (c *Copy) beforePut() bool {
	c.pause.wait(c.stopCh)
	if c.halted() {
		c.StopAll()
		return false
	}
	if c.throttle != nil {
		// the throttle context ends with any stop; a safe stop still delivers
		if err := c.throttle.Wait(c.ctx); err != nil && c.halted() {
			return false
		}
	}
	return true
}

func (c *Copy) written(schema *row.Schema, r row.Row) {
	c.counters.IncWritten()
	c.cm.Written()
	for _, l := range c.rowListeners {
		l.RowWritten(schema, r)
	}
}

// liveOutputs returns the output list without copying it. The list is
// only replaced during init.
func (c *Copy) liveOutputs() []channel.RowChannel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.outputs
}

// putAll sends r to every output. Every output after the first gets its
// own deep copy.
func (c *Copy) putAll(outputs []channel.RowChannel, schema *row.Schema, r row.Row) error {
	for i, ch := range outputs {
		out := r
		if i > 0 {
			out = row.Clone(r)
		}
		if err := c.send(ch, schema, out); err != nil {
			return err
		}
	}
	return nil
}

func (c *Copy) putPartitioned(schema *row.Schema, r row.Row) error {
	if c.router.targets == nil {
		targets, err := c.resolvePartitionTargets()
		if err != nil {
			se := rferrors.NewStageError(c.Name(), c.CopyNr(), rferrors.Configuration, err)
			c.fail(se)
			return se
		}
		c.router.targets = targets
	}

	nr, err := c.router.partitioner.PartitionOf(schema, r)
	if err != nil {
		se := rferrors.Categorize(c.Name(), c.CopyNr(), rferrors.DataQuality, err)
		c.fail(se)
		return se
	}
	if nr < 0 || nr >= len(c.router.targets) || len(c.router.targets[nr]) == 0 {
		se := rferrors.NewStageError(c.Name(), c.CopyNr(), rferrors.Configuration,
			fmt.Errorf("%w: no output for partition %d", rferrors.ErrMissingChannel, nr))
		c.fail(se)
		return se
	}
	return c.putAll(c.router.targets[nr], schema, r)
}

// resolvePartitionTargets maps each partition number to its outputs. Local
// runs index the outputs as nr + i*partCount for the i-th next stage;
// clustered runs look every output up in the distribution table.
func (c *Copy) resolvePartitionTargets() ([][]channel.RowChannel, error) {
	outputs := c.liveOutputs()
	parts := c.router.partitioner.NrPartitions()
	targets := make([][]channel.RowChannel, parts)

	if c.router.table == nil {
		for nr := 0; nr < parts; nr++ {
			for _, idx := range partition.LocalTargets(nr, parts, c.router.nextCount) {
				if idx >= len(outputs) {
					return nil, fmt.Errorf("%w: partition %d maps to output %d of %d",
						rferrors.ErrMissingChannel, nr, idx, len(outputs))
				}
				targets[nr] = append(targets[nr], outputs[idx])
			}
		}
		return targets, nil
	}

	schemaName := partition.SchemaNameFromTarget(c.router.nextMeta.Schema.Name)
	for _, ch := range outputs {
		dest := ch.Destination()
		nr := c.router.table.Partition(dest.Server, schemaName, dest.Copy)
		if nr < 0 || nr >= parts {
			return nil, fmt.Errorf("%w: no partition for server %q schema %q copy %d",
				rferrors.ErrMissingChannel, dest.Server, schemaName, dest.Copy)
		}
		targets[nr] = append(targets[nr], ch)
	}
	return targets, nil
}

// send puts r on ch, waiting while ch is full. A stop without safe stop
// discards the row and returns ErrStopped.
func (c *Copy) send(ch channel.RowChannel, schema *row.Schema, r row.Row) error {
	blocked := false
	for {
		err := ch.PutWait(schema, r, c.cfg.WaitTimeout)
		if err == nil {
			return nil
		}
		if !errors.Is(err, rferrors.ErrTimeout) {
			return fmt.Errorf("put to %s: %w", ch.Name(), err)
		}
		if !blocked {
			blocked = true
			c.cfg.Metrics.Backpressure(ch.Name())
		}
		if c.halted() {
			return rferrors.ErrStopped
		}
		c.pause.wait(c.stopCh)
	}
}

// outputView lets a Distributor send without counting rows twice.
type outputView struct{ c *Copy }

func (v outputView) OutputChannels() []channel.RowChannel { return v.c.liveOutputs() }

func (v outputView) PutRowTo(schema *row.Schema, r row.Row, ch channel.RowChannel) error {
	return v.c.send(ch, schema, r)
}
