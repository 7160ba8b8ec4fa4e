package step

import (
	"fmt"
	"strings"

	rferrors "github.com/vnykmshr/rowflow/pkg/common/errors"
	"github.com/vnykmshr/rowflow/pkg/row"
	"github.com/vnykmshr/rowflow/pkg/streaming/channel"
)

// GetRow reads the next row from the inputs, cycling through them in
// blocks of BlockSize rows. Each input gets a short wait before the next
// one is tried, so one slow producer does not stall the others. It
// returns nil once every input is done, or when the copy is stopped.
func (c *Copy) GetRow() (row.Row, error) {
	if err := c.openRemoteInputs(); err != nil {
		c.fail(err)
		return nil, err
	}
	c.pause.wait(c.stopCh)
	if c.halted() {
		c.StopAll()
		return nil, nil
	}

	idle := 0
	for {
		ch, n := c.currentInput()
		if ch == nil {
			return nil, nil
		}

		r, ok := ch.GetWait(c.cfg.WaitTimeout)
		if !ok && ch.IsDone() {
			// a row may still land between the wait and the done check
			if r, ok = ch.Get(); !ok {
				if err := c.inputExhausted(ch); err != nil {
					return nil, err
				}
				idle = 0
				continue
			}
		}
		if ok {
			c.blockRead++
			if c.blockRead >= c.cfg.BlockSize {
				c.advanceInput()
			}
			return c.accept(ch, r)
		}

		c.advanceInput()
		idle++
		if idle >= n {
			idle = 0
			if err := c.checkDeadlock(); err != nil {
				return nil, err
			}
		}
		if c.halted() {
			c.StopAll()
			return nil, nil
		}
		c.pause.wait(c.stopCh)
	}
}

// GetRowFrom reads the next row from ch only. It returns nil once ch is
// done, or when the copy is stopped.
func (c *Copy) GetRowFrom(ch channel.RowChannel) (row.Row, error) {
	if err := c.openRemoteInputs(); err != nil {
		c.fail(err)
		return nil, err
	}
	c.pause.wait(c.stopCh)
	if c.halted() {
		c.StopAll()
		return nil, nil
	}

	for {
		if r, ok := ch.GetWait(c.cfg.WaitTimeout); ok {
			return c.accept(ch, r)
		}
		if ch.IsDone() {
			if r, ok := ch.Get(); ok {
				return c.accept(ch, r)
			}
			return nil, c.inputExhausted(ch)
		}
		if c.halted() {
			c.StopAll()
			return nil, nil
		}
		if err := c.checkDeadlock(); err != nil {
			return nil, err
		}
		c.pause.wait(c.stopCh)
	}
}

// InputSchema returns the schema of the last row read.
func (c *Copy) InputSchema() *row.Schema {
	return c.inputSchema
}

// FindInputChannel returns the input fed by stage from, which must run
// in a single copy.
func (c *Copy) FindInputChannel(from string) (channel.RowChannel, error) {
	prev, ok := c.def.FindStage(from)
	if !ok {
		return nil, fmt.Errorf("%w: unknown stage %q", rferrors.ErrInvalidConfiguration, from)
	}
	if prev.CopyCount() > 1 {
		return nil, fmt.Errorf("%w: stage %q runs in %d copies, read it with GetRow",
			rferrors.ErrInvalidConfiguration, from, prev.CopyCount())
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, ch := range c.inputs {
		if strings.EqualFold(ch.Origin().Stage, from) {
			return ch, nil
		}
	}
	return nil, fmt.Errorf("%w: no input from %q", rferrors.ErrMissingChannel, from)
}

// currentInput returns the input to read next and the number of inputs.
// Only the copy's own goroutine moves the cursor.
func (c *Copy) currentInput() (channel.RowChannel, int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := len(c.inputs)
	if n == 0 {
		return nil, 0
	}
	if c.currentIn >= n {
		c.currentIn = 0
	}
	return c.inputs[c.currentIn], n
}

func (c *Copy) advanceInput() {
	c.currentIn++
	c.blockRead = 0
}

func (c *Copy) removeInput(ch channel.RowChannel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, in := range c.inputs {
		if in == ch {
			c.inputs = append(c.inputs[:i:i], c.inputs[i+1:]...)
			if c.currentIn > i {
				c.currentIn--
			}
			break
		}
	}
	if c.currentIn >= len(c.inputs) {
		c.currentIn = 0
	}
	c.blockRead = 0
}

// inputExhausted drops a done and drained input. A remote input whose
// stream broke before the done frame fails the copy instead.
func (c *Copy) inputExhausted(ch channel.RowChannel) error {
	c.removeInput(ch)
	for _, in := range c.remoteInputs {
		if in.Channel() != ch {
			continue
		}
		if err := in.Err(); err != nil {
			se := rferrors.NewStageError(c.Name(), c.CopyNr(), rferrors.Resource, err)
			c.fail(se)
			return se
		}
	}
	return nil
}

// accept validates and accounts a row read from ch.
func (c *Copy) accept(ch channel.RowChannel, r row.Row) (row.Row, error) {
	schema := ch.Schema()
	if c.def.SafeMode {
		if c.referenceSchema == nil {
			c.referenceSchema = schema
		} else if schema != c.referenceSchema {
			if err := c.referenceSchema.CompareLayout(schema); err != nil {
				se := rferrors.NewStageError(c.Name(), c.CopyNr(), rferrors.Configuration,
					fmt.Errorf("input from %s: %w", ch.Origin(), err))
				c.fail(se)
				return nil, se
			}
		}
	}
	c.inputSchema = schema

	c.counters.IncRead()
	c.cm.Read()
	for _, l := range c.rowListeners {
		l.RowRead(schema, r)
	}
	return r, nil
}

func (c *Copy) checkDeadlock() error {
	if c.detector == nil {
		return nil
	}
	err := c.detector.Check(c)
	if err == nil {
		return nil
	}
	c.cfg.Metrics.DeadlockDetected(c.Name())
	se := rferrors.NewStageError(c.Name(), c.CopyNr(), rferrors.Deadlock, err)
	c.fail(se)
	return se
}
