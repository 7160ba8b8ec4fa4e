package steps

import (
	"context"
	"fmt"
	"strconv"
	"time"

	rferrors "github.com/vnykmshr/rowflow/pkg/common/errors"
	"github.com/vnykmshr/rowflow/pkg/pipeline"
	"github.com/vnykmshr/rowflow/pkg/row"
	"github.com/vnykmshr/rowflow/pkg/step"
)

const TypeGenerator = "generator"

// ConstField is a field with the same value in every generated row.
type ConstField struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

// GeneratorOptions configures the generator.
type GeneratorOptions struct {
	// Rows is the number of rows each copy emits.
	Rows int64 `json:"rows"`

	// IDField names the sequence field. Defaults to "id".
	IDField string `json:"idField,omitempty"`

	// Start is the first id.
	Start int64 `json:"start,omitempty"`

	Fields []ConstField `json:"fields,omitempty"`
}

type generator struct {
	opts   GeneratorOptions
	schema *row.Schema
	consts row.Row
	next   int64
}

// NewGenerator creates a generator from the stage options.
func NewGenerator(meta *pipeline.StageMeta) (step.Processor, error) {
	opts := GeneratorOptions{IDField: "id"}
	if err := meta.DecodeOptions(&opts); err != nil {
		return nil, err
	}
	if opts.Rows < 0 {
		return nil, rferrors.NewValidationError("generator", "rows", opts.Rows, "must not be negative")
	}

	fields := []row.ValueMeta{row.Field(opts.IDField, row.TypeInteger)}
	consts := make(row.Row, 0, len(opts.Fields))
	for _, f := range opts.Fields {
		t, ok := row.ParseValueType(f.Type)
		if !ok || t == row.TypeNone {
			return nil, rferrors.NewValidationError("generator", "fields."+f.Name+".type", f.Type, "unknown value type")
		}
		v, err := parseValue(t, f.Value)
		if err != nil {
			return nil, rferrors.NewValidationError("generator", "fields."+f.Name+".value", f.Value, err.Error())
		}
		fields = append(fields, row.Field(f.Name, t))
		consts = append(consts, v)
	}
	return &generator{
		opts:   opts,
		schema: row.NewSchema(fields...),
		consts: consts,
		next:   opts.Start,
	}, nil
}

func (g *generator) Init(context.Context, step.Context) error { return nil }
func (g *generator) Dispose(step.Context)                     {}

func (g *generator) ProcessRow(_ context.Context, sc step.Context) (bool, error) {
	if g.next-g.opts.Start >= g.opts.Rows {
		return false, nil
	}
	r := make(row.Row, 0, 1+len(g.consts))
	r = append(r, g.next)
	r = append(r, row.Clone(g.consts)...)
	g.next++
	return true, sc.PutRow(g.schema, r)
}

// parseValue converts the text form of a constant to its Go value.
func parseValue(t row.ValueType, s string) (any, error) {
	switch t {
	case row.TypeString:
		return s, nil
	case row.TypeInteger:
		return strconv.ParseInt(s, 10, 64)
	case row.TypeNumber:
		return strconv.ParseFloat(s, 64)
	case row.TypeBoolean:
		return strconv.ParseBool(s)
	case row.TypeDate:
		return time.Parse(time.RFC3339, s)
	case row.TypeBinary:
		return []byte(s), nil
	}
	return nil, fmt.Errorf("unsupported type %s", t)
}
