package steps

import (
	"sort"
	"strings"
	"sync"

	rferrors "github.com/vnykmshr/rowflow/pkg/common/errors"
	"github.com/vnykmshr/rowflow/pkg/pipeline"
	"github.com/vnykmshr/rowflow/pkg/step"
)

// Registry maps stage types to processor constructors.
type Registry struct {
	mu    sync.RWMutex
	types map[string]step.Factory
}

// NewRegistry returns a registry holding the built-in processors.
func NewRegistry() *Registry {
	r := &Registry{types: make(map[string]step.Factory)}
	r.Register(TypeGenerator, NewGenerator)
	r.Register(TypeDummy, NewDummy)
	r.Register(TypeValidator, NewValidator)
	r.Register(TypeSQLOutput, NewSQLOutput)
	return r
}

// Register adds or replaces the constructor for a stage type. Types are
// case-insensitive.
func (r *Registry) Register(typ string, f step.Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[strings.ToLower(typ)] = f
}

// Types returns the registered stage types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.types))
	for t := range r.types {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// New creates the processor for meta.
func (r *Registry) New(meta *pipeline.StageMeta) (step.Processor, error) {
	r.mu.RLock()
	f, ok := r.types[strings.ToLower(meta.Type)]
	r.mu.RUnlock()
	if !ok {
		return nil, rferrors.NewValidationError("steps", "type", meta.Type, "unknown stage type").
			WithHint("registered: " + strings.Join(r.Types(), ", "))
	}
	return f(meta)
}

// Factory returns r as a step.Factory.
func (r *Registry) Factory() step.Factory {
	return r.New
}

// Factory returns a factory over the built-in processors.
func Factory() step.Factory {
	return NewRegistry().Factory()
}
