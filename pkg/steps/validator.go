package steps

import (
	"context"
	"fmt"
	"strings"

	rferrors "github.com/vnykmshr/rowflow/pkg/common/errors"
	"github.com/vnykmshr/rowflow/pkg/pipeline"
	"github.com/vnykmshr/rowflow/pkg/row"
	"github.com/vnykmshr/rowflow/pkg/step"
)

const (
	TypeValidator = "validator"

	// CodeNotNull is the error code of a required field left empty.
	CodeNotNull = "NOT_NULL"
)

// ValidatorOptions configures the validator.
type ValidatorOptions struct {
	// Required lists the fields that must not be nil or blank.
	Required []string `json:"required"`
}

type validator struct {
	required []string

	// index caches the positions of the required fields per input schema
	schema *row.Schema
	index  []int
}

// NewValidator creates a validator from the stage options. Rows that fail
// are rejected through the copy's error handling.
func NewValidator(meta *pipeline.StageMeta) (step.Processor, error) {
	var opts ValidatorOptions
	if err := meta.DecodeOptions(&opts); err != nil {
		return nil, err
	}
	if len(opts.Required) == 0 {
		return nil, rferrors.NewValidationError("validator", "required", nil, "list at least one field")
	}
	return &validator{required: opts.Required}, nil
}

func (v *validator) Init(context.Context, step.Context) error { return nil }
func (v *validator) Dispose(step.Context)                     {}

func (v *validator) ProcessRow(_ context.Context, sc step.Context) (bool, error) {
	r, err := sc.GetRow()
	if err != nil || r == nil {
		return false, err
	}
	schema := sc.InputSchema()
	if err := v.resolve(schema); err != nil {
		return false, err
	}

	var missing []string
	for i, idx := range v.index {
		if idx >= len(r) || blank(r[idx]) {
			missing = append(missing, v.required[i])
		}
	}
	if len(missing) == 0 {
		return true, sc.PutRow(schema, r)
	}

	descriptions := make([]string, len(missing))
	codes := make([]string, len(missing))
	for i, f := range missing {
		descriptions[i] = fmt.Sprintf("field %q is empty", f)
		codes[i] = CodeNotNull
	}
	return true, sc.PutError(schema, r, int64(len(missing)),
		strings.Join(descriptions, "; "), strings.Join(missing, ","), strings.Join(codes, ","))
}

func (v *validator) resolve(schema *row.Schema) error {
	if schema == v.schema {
		return nil
	}
	index := make([]int, len(v.required))
	for i, name := range v.required {
		index[i] = schema.IndexOf(name)
		if index[i] < 0 {
			return fmt.Errorf("%w: required field %q is not in the input %s",
				rferrors.ErrInvalidConfiguration, name, schema)
		}
	}
	v.schema, v.index = schema, index
	return nil
}

func blank(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []byte:
		return len(x) == 0
	}
	return false
}
