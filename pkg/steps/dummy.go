package steps

import (
	"context"

	"github.com/vnykmshr/rowflow/pkg/pipeline"
	"github.com/vnykmshr/rowflow/pkg/step"
)

const TypeDummy = "dummy"

// dummy forwards every row unchanged.
type dummy struct{}

// NewDummy creates a pass-through processor.
func NewDummy(*pipeline.StageMeta) (step.Processor, error) {
	return dummy{}, nil
}

func (dummy) Init(context.Context, step.Context) error { return nil }
func (dummy) Dispose(step.Context)                     {}

func (dummy) ProcessRow(_ context.Context, sc step.Context) (bool, error) {
	r, err := sc.GetRow()
	if err != nil || r == nil {
		return false, err
	}
	return true, sc.PutRow(sc.InputSchema(), r)
}
