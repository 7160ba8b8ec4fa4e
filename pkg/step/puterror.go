package step

import (
	"fmt"

	rferrors "github.com/vnykmshr/rowflow/pkg/common/errors"
	"github.com/vnykmshr/rowflow/pkg/row"
	"github.com/vnykmshr/rowflow/pkg/streaming/channel"
)

// PutError rejects r. With error handling configured, the row is sent to
// the error stage with the diagnostic fields appended and the error-rate
// governor is consulted; a breach stops the run. Without error handling
// the rejection is a fatal data quality error.
func (c *Copy) PutError(schema *row.Schema, r row.Row, nrErrors int64, descriptions, fieldNames, codes string) error {
	eh := c.meta.ErrorHandling
	if eh == nil {
		c.counters.IncRejected()
		c.cm.Rejected()
		se := rferrors.NewStageError(c.Name(), c.CopyNr(), rferrors.DataQuality,
			fmt.Errorf("row rejected without error handling: %s", descriptions))
		c.fail(se)
		return se
	}

	c.pause.wait(c.stopCh)
	if !c.halted() {
		errSchema := c.errorSchema(schema)
		errRow := c.errorRow(schema, r, nrErrors, descriptions, fieldNames, codes)
		sent := true
		if ch := c.nextErrorOutput(); ch != nil {
			if err := c.send(ch, errSchema, errRow); err != nil {
				if err = discarded(err); err != nil {
					return err
				}
				sent = false
			}
		}
		if sent {
			for _, l := range c.rowListeners {
				l.ErrorRowWritten(errSchema, errRow)
			}
		}
	}

	rejected, read := c.counters.IncRejected()
	c.cm.Rejected()
	if err := c.governor.Check(read, rejected); err != nil {
		c.log.Error("error rate exceeded", "rejected", rejected, "read", read, "error", err)
		se := rferrors.NewStageError(c.Name(), c.CopyNr(), rferrors.RateExceeded, err)
		c.fail(se)
		return se
	}
	return nil
}

// errorSchema returns schema with the configured diagnostic fields
// appended. It is built once per source schema.
func (c *Copy) errorSchema(schema *row.Schema) *row.Schema {
	c.errSchemaMu.Lock()
	defer c.errSchemaMu.Unlock()
	if c.errSchema != nil && c.errSource == schema {
		return c.errSchema
	}

	eh := c.meta.ErrorHandling
	var extra []row.ValueMeta
	if eh.NrErrorsField != "" {
		extra = append(extra, row.Field(eh.NrErrorsField, row.TypeInteger))
	}
	if eh.DescriptionsField != "" {
		extra = append(extra, row.Field(eh.DescriptionsField, row.TypeString))
	}
	if eh.FieldsField != "" {
		extra = append(extra, row.Field(eh.FieldsField, row.TypeString))
	}
	if eh.CodesField != "" {
		extra = append(extra, row.Field(eh.CodesField, row.TypeString))
	}
	c.errSource = schema
	c.errSchema = schema.Append(extra...)
	return c.errSchema
}

func (c *Copy) errorRow(schema *row.Schema, r row.Row, nrErrors int64, descriptions, fieldNames, codes string) row.Row {
	eh := c.meta.ErrorHandling
	n := schema.Len()
	out := make(row.Row, n, n+4)
	copy(out, row.Clone(r))
	if eh.NrErrorsField != "" {
		out = append(out, nrErrors)
	}
	if eh.DescriptionsField != "" {
		out = append(out, descriptions)
	}
	if eh.FieldsField != "" {
		out = append(out, fieldNames)
	}
	if eh.CodesField != "" {
		out = append(out, codes)
	}
	return out
}

// nextErrorOutput returns the error output to use, cycling over several.
func (c *Copy) nextErrorOutput() channel.RowChannel {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.errorOuts) == 0 {
		return nil
	}
	ch := c.errorOuts[c.errorCursor%len(c.errorOuts)]
	c.errorCursor++
	return ch
}
