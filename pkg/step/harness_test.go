package step

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vnykmshr/rowflow/internal/testutil"
	"github.com/vnykmshr/rowflow/pkg/deadlock"
	"github.com/vnykmshr/rowflow/pkg/dispatch"
	"github.com/vnykmshr/rowflow/pkg/pipeline"
	"github.com/vnykmshr/rowflow/pkg/row"
)

var testSchema = row.NewSchema(row.Field("id", row.TypeInteger), row.Field("name", row.TypeString))

// procFunc adapts a function to Processor.
type procFunc func(ctx context.Context, sc Context) (bool, error)

func (f procFunc) Init(context.Context, Context) error { return nil }
func (f procFunc) Dispose(Context)                     {}

func (f procFunc) ProcessRow(ctx context.Context, sc Context) (bool, error) {
	return f(ctx, sc)
}

// generate emits n rows with ids 0..n-1.
func generate(n int) func() Processor {
	return func() Processor {
		i := 0
		return procFunc(func(_ context.Context, sc Context) (bool, error) {
			if i >= n {
				return false, nil
			}
			r := row.Row{int64(i), "row"}
			i++
			return true, sc.PutRow(testSchema, r)
		})
	}
}

func passThrough() Processor {
	return procFunc(func(_ context.Context, sc Context) (bool, error) {
		r, err := sc.GetRow()
		if err != nil || r == nil {
			return false, err
		}
		return true, sc.PutRow(sc.InputSchema(), r)
	})
}

// collector keeps every row a copy reads.
type collector struct {
	mu   sync.Mutex
	rows []row.Row
	last *row.Schema
}

func (col *collector) processor() Processor {
	return procFunc(func(_ context.Context, sc Context) (bool, error) {
		r, err := sc.GetRow()
		if err != nil || r == nil {
			return false, err
		}
		col.mu.Lock()
		col.rows = append(col.rows, r)
		col.last = sc.InputSchema()
		col.mu.Unlock()
		return true, nil
	})
}

func (col *collector) snapshot() []row.Row {
	col.mu.Lock()
	defer col.mu.Unlock()
	return append([]row.Row(nil), col.rows...)
}

func (col *collector) ids() map[int64]int {
	seen := make(map[int64]int)
	for _, r := range col.snapshot() {
		seen[r[0].(int64)]++
	}
	return seen
}

// testRun wires and runs every copy of a definition, standing in for the
// run supervisor.
type testRun struct {
	def    *pipeline.Definition
	copies []*Copy
}

func (r *testRun) StopAll() {
	for _, c := range r.copies {
		c.Stop()
	}
}

func (r *testRun) Copies() []*Copy { return r.copies }

func (r *testRun) IsBefore(upstream, downstream string) bool {
	return r.def.IsBefore(upstream, downstream)
}

func (r *testRun) copy(stage string, nr int) *Copy {
	for _, c := range r.copies {
		if c.Name() == stage && c.CopyNr() == nr {
			return c
		}
	}
	return nil
}

// newTestRun builds one copy per stage copy. procs maps stage names to a
// processor per copy; stages without an entry pass rows through.
func newTestRun(t *testing.T, def *pipeline.Definition, procs map[string]func(copyNr int) Processor) *testRun {
	t.Helper()
	d := dispatch.New(def)
	testutil.AssertNoError(t, d.Allocate())

	run := &testRun{def: def}
	for i := range def.Stages {
		meta := &def.Stages[i]
		for nr := 0; nr < meta.CopyCount(); nr++ {
			in, out, err := d.Wire(meta.Name, nr)
			testutil.AssertNoError(t, err)
			proc := passThrough()
			if f, ok := procs[meta.Name]; ok {
				proc = f(nr)
			}
			c, err := New(Config{
				Definition:  def,
				Stage:       meta,
				CopyNr:      nr,
				Inputs:      in,
				Outputs:     out,
				Processor:   proc,
				Run:         run,
				WaitTimeout: time.Millisecond,
				Deadlock:    deadlock.Config{CheckInterval: 20 * time.Millisecond},
			})
			testutil.AssertNoError(t, err)
			run.copies = append(run.copies, c)
		}
	}
	return run
}

// execute initializes, runs and cleans up every copy.
func (r *testRun) execute(t *testing.T) error {
	t.Helper()
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	for _, c := range r.copies {
		if err := c.Init(ctx); err != nil {
			for _, c := range r.copies {
				c.Cleanup()
			}
			return err
		}
	}

	errs := make([]error, len(r.copies))
	var wg sync.WaitGroup
	for i, c := range r.copies {
		i, c := i, c
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = c.Run(ctx)
		}()
	}
	wg.Wait()
	for _, c := range r.copies {
		c.Cleanup()
	}
	return errors.Join(errs...)
}

func twoStages(prev, next pipeline.StageMeta) *pipeline.Definition {
	return &pipeline.Definition{
		Name:       "test",
		Stages:     []pipeline.StageMeta{prev, next},
		Hops:       []pipeline.Hop{{From: prev.Name, To: next.Name}},
		BufferSize: 16,
	}
}
