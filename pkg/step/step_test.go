package step

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vnykmshr/rowflow/internal/testutil"
	rferrors "github.com/vnykmshr/rowflow/pkg/common/errors"
	"github.com/vnykmshr/rowflow/pkg/partition"
	"github.com/vnykmshr/rowflow/pkg/pipeline"
	"github.com/vnykmshr/rowflow/pkg/row"
	"github.com/vnykmshr/rowflow/pkg/streaming/channel"
)

func collectors(n int) ([]*collector, func(int) Processor) {
	cols := make([]*collector, n)
	for i := range cols {
		cols[i] = &collector{}
	}
	return cols, func(nr int) Processor { return cols[nr].processor() }
}

func fromGenerator(n int) func(int) Processor {
	return func(int) Processor { return generate(n)() }
}

func TestCopyModeClonesRowsPerOutput(t *testing.T) {
	def := &pipeline.Definition{
		Name: "fan-out",
		Stages: []pipeline.StageMeta{
			{Name: "gen", Type: "generator"},
			{Name: "left", Type: "collector"},
			{Name: "right", Type: "collector"},
		},
		Hops: []pipeline.Hop{{From: "gen", To: "left"}, {From: "gen", To: "right"}},
	}
	left, leftProc := collectors(1)
	right, rightProc := collectors(1)
	run := newTestRun(t, def, map[string]func(int) Processor{
		"gen":   fromGenerator(10),
		"left":  leftProc,
		"right": rightProc,
	})

	testutil.AssertNoError(t, run.execute(t))

	l, r := left[0].snapshot(), right[0].snapshot()
	testutil.AssertEqual(t, len(l), 10)
	testutil.AssertEqual(t, len(r), 10)
	for i := range l {
		testutil.AssertEqual(t, l[i][0].(int64), r[i][0].(int64))
		if &l[i][0] == &r[i][0] {
			t.Fatalf("row %d is shared between outputs", i)
		}
	}
	testutil.AssertEqual(t, run.copy("gen", 0).Counters().Snapshot().Written, int64(10))
}

func TestDistributeRoundRobin(t *testing.T) {
	def := twoStages(
		pipeline.StageMeta{Name: "gen", Type: "generator", Distribute: true},
		pipeline.StageMeta{Name: "sink", Type: "collector", Copies: 3},
	)
	cols, sinkProc := collectors(3)
	run := newTestRun(t, def, map[string]func(int) Processor{
		"gen":  fromGenerator(9),
		"sink": sinkProc,
	})

	testutil.AssertNoError(t, run.execute(t))

	for i, col := range cols {
		got := col.snapshot()
		testutil.AssertEqual(t, len(got), 3)
		for _, r := range got {
			testutil.AssertEqual(t, r[0].(int64)%3, int64(i))
		}
	}
	// one logical row, one count, however many outputs there are
	testutil.AssertEqual(t, run.copy("gen", 0).Counters().Snapshot().Written, int64(9))
}

func TestSpecialPartitioning(t *testing.T) {
	def := twoStages(
		pipeline.StageMeta{Name: "gen", Type: "generator"},
		pipeline.StageMeta{Name: "part", Type: "collector", Partitioning: partition.Meta{
			Method:        partition.Special,
			Schema:        partition.Schema{Name: "p", PartitionIDs: []string{"p0", "p1", "p2"}},
			PartitionerID: "mod",
			Fields:        []string{"id"},
		}},
	)
	cols, partProc := collectors(3)
	run := newTestRun(t, def, map[string]func(int) Processor{
		"gen":  fromGenerator(30),
		"part": partProc,
	})

	testutil.AssertNoError(t, run.execute(t))

	for k, col := range cols {
		got := col.snapshot()
		testutil.AssertEqual(t, len(got), 10)
		for _, r := range got {
			testutil.AssertEqual(t, r[0].(int64)%3, int64(k))
		}
		testutil.AssertEqual(t, run.copy("part", k).PartitionID(), def.Stages[1].Partitioning.Schema.PartitionIDs[k])
	}
}

func TestPartitionKeyMissingIsConfigurationError(t *testing.T) {
	def := twoStages(
		pipeline.StageMeta{Name: "gen", Type: "generator"},
		pipeline.StageMeta{Name: "part", Type: "collector", Partitioning: partition.Meta{
			Method:        partition.Special,
			Schema:        partition.Schema{Name: "p", PartitionIDs: []string{"p0", "p1"}},
			PartitionerID: "mod",
			Fields:        []string{"region"},
		}},
	)
	cols, partProc := collectors(2)
	run := newTestRun(t, def, map[string]func(int) Processor{
		"gen":  fromGenerator(4),
		"part": partProc,
	})

	err := run.execute(t)
	testutil.AssertError(t, err)
	testutil.AssertEqual(t, rferrors.CategoryOf(err), rferrors.Configuration)
	if !errors.Is(err, rferrors.ErrInvalidConfiguration) {
		t.Fatalf("expected an invalid configuration error, got %v", err)
	}
	for _, col := range cols {
		testutil.AssertEqual(t, len(col.snapshot()), 0)
	}
}

func TestMirrorPartitioning(t *testing.T) {
	def := twoStages(
		pipeline.StageMeta{Name: "gen", Type: "generator"},
		pipeline.StageMeta{Name: "mirror", Type: "collector", Partitioning: partition.Meta{
			Method: partition.Mirror,
			Schema: partition.Schema{Name: "m", PartitionIDs: []string{"a", "b"}},
		}},
	)
	cols, proc := collectors(2)
	run := newTestRun(t, def, map[string]func(int) Processor{
		"gen":    fromGenerator(5),
		"mirror": proc,
	})

	testutil.AssertNoError(t, run.execute(t))

	for _, col := range cols {
		testutil.AssertEqual(t, len(col.snapshot()), 5)
	}
	testutil.AssertEqual(t, run.copy("gen", 0).Counters().Snapshot().Written, int64(5))
}

func TestSafeModeRejectsMixedLayouts(t *testing.T) {
	other := row.NewSchema(row.Field("key", row.TypeInteger), row.Field("name", row.TypeString))
	def := &pipeline.Definition{
		Name:     "safe",
		SafeMode: true,
		Stages: []pipeline.StageMeta{
			{Name: "a", Type: "generator"},
			{Name: "b", Type: "generator"},
			{Name: "sink", Type: "collector"},
		},
		Hops: []pipeline.Hop{{From: "a", To: "sink"}, {From: "b", To: "sink"}},
	}
	col := &collector{}
	run := newTestRun(t, def, map[string]func(int) Processor{
		"a": fromGenerator(5),
		"b": func(int) Processor {
			i := 0
			return procFunc(func(_ context.Context, sc Context) (bool, error) {
				if i >= 5 {
					return false, nil
				}
				i++
				return true, sc.PutRow(other, row.Row{int64(i), "other"})
			})
		},
		"sink": func(int) Processor { return col.processor() },
	})

	err := run.execute(t)
	testutil.AssertError(t, err)

	var mismatch *row.MismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected a layout mismatch, got %v", err)
	}
	testutil.AssertEqual(t, mismatch.Kind, row.MismatchName)
	testutil.AssertEqual(t, mismatch.Position, 1)
	testutil.AssertEqual(t, rferrors.CategoryOf(err), rferrors.Configuration)
	testutil.AssertEqual(t, run.copy("sink", 0).Status(), StatusDisposed)
}

func TestPutRowChecksFieldNames(t *testing.T) {
	blank := row.NewSchema(row.Field("", row.TypeString))
	emit := func(int) Processor {
		done := false
		return procFunc(func(_ context.Context, sc Context) (bool, error) {
			if done {
				return false, nil
			}
			done = true
			return true, sc.PutRow(blank, row.Row{"x"})
		})
	}

	t.Run("rejected", func(t *testing.T) {
		def := twoStages(pipeline.StageMeta{Name: "gen"}, pipeline.StageMeta{Name: "sink"})
		col := &collector{}
		run := newTestRun(t, def, map[string]func(int) Processor{
			"gen":  emit,
			"sink": func(int) Processor { return col.processor() },
		})
		err := run.execute(t)
		testutil.AssertError(t, err)
		if !errors.Is(err, rferrors.ErrInvalidConfiguration) {
			t.Fatalf("expected invalid configuration, got %v", err)
		}
		testutil.AssertEqual(t, rferrors.CategoryOf(err), rferrors.Configuration)
		testutil.AssertEqual(t, len(col.snapshot()), 0)
	})

	t.Run("allowed", func(t *testing.T) {
		def := twoStages(pipeline.StageMeta{Name: "gen"}, pipeline.StageMeta{Name: "sink"})
		def.AllowEmptyFieldNamesAndTypes = true
		col := &collector{}
		run := newTestRun(t, def, map[string]func(int) Processor{
			"gen":  emit,
			"sink": func(int) Processor { return col.processor() },
		})
		testutil.AssertNoError(t, run.execute(t))
		testutil.AssertEqual(t, len(col.snapshot()), 1)
	})
}

func errorHandlingDef(eh *pipeline.ErrorHandling) *pipeline.Definition {
	return &pipeline.Definition{
		Name: "errors",
		Stages: []pipeline.StageMeta{
			{Name: "validate", Type: "validator", ErrorHandling: eh},
			{Name: "good", Type: "collector"},
			{Name: "bad", Type: "collector"},
		},
		Hops: []pipeline.Hop{{From: "validate", To: "good"}, {From: "validate", To: "bad"}},
	}
}

func TestPutErrorRoutesToErrorStage(t *testing.T) {
	def := errorHandlingDef(&pipeline.ErrorHandling{
		Target:            "bad",
		NrErrorsField:     "nr_errors",
		DescriptionsField: "descriptions",
		FieldsField:       "fields",
		CodesField:        "codes",
	})
	good, bad := &collector{}, &collector{}
	run := newTestRun(t, def, map[string]func(int) Processor{
		"validate": func(int) Processor {
			i := 0
			return procFunc(func(_ context.Context, sc Context) (bool, error) {
				if i >= 6 {
					return false, nil
				}
				r := row.Row{int64(i), "row"}
				i++
				if r[0].(int64)%2 == 1 {
					return true, sc.PutError(testSchema, r, 1, "odd id", "id", "E1")
				}
				return true, sc.PutRow(testSchema, r)
			})
		},
		"good": func(int) Processor { return good.processor() },
		"bad":  func(int) Processor { return bad.processor() },
	})

	testutil.AssertNoError(t, run.execute(t))

	testutil.AssertEqual(t, len(good.snapshot()), 3)
	rejected := bad.snapshot()
	testutil.AssertEqual(t, len(rejected), 3)
	for _, r := range rejected {
		testutil.AssertEqual(t, len(r), 6)
		testutil.AssertEqual(t, r[0].(int64)%2, int64(1))
		testutil.AssertEqual(t, r[2].(int64), int64(1))
		testutil.AssertEqual(t, r[3].(string), "odd id")
		testutil.AssertEqual(t, r[4].(string), "id")
		testutil.AssertEqual(t, r[5].(string), "E1")
	}
	testutil.AssertEqual(t, strings.Join(bad.last.Names(), ","), "id,name,nr_errors,descriptions,fields,codes")

	snap := run.copy("validate", 0).Counters().Snapshot()
	testutil.AssertEqual(t, snap.Written, int64(3))
	testutil.AssertEqual(t, snap.Rejected, int64(3))
	testutil.AssertEqual(t, len(run.copy("validate", 0).ErrorChannels()), 1)
	testutil.AssertEqual(t, len(run.copy("validate", 0).OutputChannels()), 1)
}

func TestGovernorStopsAtFirstBreach(t *testing.T) {
	const maxErrors = 2
	def := errorHandlingDef(&pipeline.ErrorHandling{Target: "bad", MaxErrors: maxErrors})

	var accepted atomic.Int64
	var stoppedEarly atomic.Bool
	run := newTestRun(t, def, map[string]func(int) Processor{
		"validate": func(int) Processor {
			return procFunc(func(_ context.Context, sc Context) (bool, error) {
				if err := sc.PutError(testSchema, row.Row{int64(1), "x"}, 1, "bad", "id", "E"); err != nil {
					return false, err
				}
				if sc.IsStopped() {
					stoppedEarly.Store(true)
				}
				accepted.Add(1)
				return true, nil
			})
		},
	})

	err := run.execute(t)
	testutil.AssertError(t, err)
	if !errors.Is(err, rferrors.ErrRateExceeded) {
		t.Fatalf("expected rate exceeded, got %v", err)
	}
	testutil.AssertEqual(t, rferrors.CategoryOf(err), rferrors.RateExceeded)
	testutil.AssertEqual(t, accepted.Load(), int64(maxErrors))
	testutil.AssertEqual(t, stoppedEarly.Load(), false)
	testutil.AssertEqual(t, run.copy("validate", 0).Counters().Snapshot().Rejected, int64(maxErrors+1))
	testutil.AssertEqual(t, run.copy("good", 0).IsStopped(), true)
}

func TestPutErrorWithoutHandlingIsFatal(t *testing.T) {
	def := twoStages(pipeline.StageMeta{Name: "gen"}, pipeline.StageMeta{Name: "sink"})
	run := newTestRun(t, def, map[string]func(int) Processor{
		"gen": func(int) Processor {
			return procFunc(func(_ context.Context, sc Context) (bool, error) {
				return true, sc.PutError(testSchema, row.Row{int64(1), "x"}, 1, "broken", "id", "E")
			})
		},
	})

	err := run.execute(t)
	testutil.AssertError(t, err)
	testutil.AssertEqual(t, rferrors.CategoryOf(err), rferrors.DataQuality)
	testutil.AssertEqual(t, run.copy("gen", 0).Counters().Snapshot().Rejected, int64(1))
}

func singleCopy(t *testing.T, proc Processor, inputs, outputs []channel.RowChannel) *Copy {
	t.Helper()
	def := &pipeline.Definition{Name: "single", Stages: []pipeline.StageMeta{{Name: "solo"}}}
	c, err := New(Config{
		Definition:  def,
		Stage:       &def.Stages[0],
		Inputs:      inputs,
		Outputs:     outputs,
		Processor:   proc,
		WaitTimeout: time.Millisecond,
	})
	testutil.AssertNoError(t, err)
	return c
}

func startCopy(t *testing.T, c *Copy) (<-chan struct{}, *error) {
	t.Helper()
	ctx, cancel := testutil.WithTimeout(t)
	testutil.AssertNoError(t, c.Init(ctx))

	done := make(chan struct{})
	var runErr error
	go func() {
		defer close(done)
		defer cancel()
		runErr = c.Run(ctx)
	}()
	t.Cleanup(func() {
		c.Stop()
		<-done
		c.Cleanup()
	})
	return done, &runErr
}

func TestPauseAndResume(t *testing.T) {
	out := channel.New(1000, channel.Endpoint{Stage: "solo"}, channel.Endpoint{Stage: "sink"})
	c := singleCopy(t, generate(100)(), nil, []channel.RowChannel{out})
	c.Pause()

	done, runErr := startCopy(t, c)

	testutil.Eventually(t, func() bool { return c.Status() == StatusPaused }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	testutil.AssertEqual(t, out.Len(), 0)
	testutil.AssertEqual(t, c.IsPaused(), true)

	c.Resume()
	testutil.WaitDone(t, done, 5*time.Second)
	testutil.AssertNoError(t, *runErr)
	testutil.AssertEqual(t, out.Len(), 100)
	testutil.AssertEqual(t, out.IsDone(), true)
	testutil.AssertEqual(t, c.Status(), StatusFinished)
}

func TestStopUnblocksFullOutput(t *testing.T) {
	out := channel.New(1, channel.Endpoint{Stage: "solo"}, channel.Endpoint{Stage: "sink"})
	c := singleCopy(t, generate(100)(), nil, []channel.RowChannel{out})
	l := &countingListener{}
	c.AddRowListener(l)

	done, runErr := startCopy(t, c)
	testutil.Eventually(t, func() bool { return out.Stats().BlockedPuts > 0 }, time.Second, time.Millisecond)

	c.Stop()
	testutil.WaitDone(t, done, 5*time.Second)
	testutil.AssertNoError(t, *runErr)
	testutil.AssertEqual(t, out.Len(), 1)
	testutil.AssertEqual(t, c.Status(), StatusStopped)
	testutil.AssertEqual(t, c.IsSafeStopped(), false)

	// the blocked row was discarded, so only the delivered one counts
	testutil.AssertEqual(t, c.Counters().Snapshot().Written, int64(1))
	l.mu.Lock()
	defer l.mu.Unlock()
	testutil.AssertEqual(t, l.written, 1)
}

func TestSafeStopDeliversPendingRow(t *testing.T) {
	out := channel.New(1, channel.Endpoint{Stage: "solo"}, channel.Endpoint{Stage: "sink"})
	c := singleCopy(t, generate(100)(), nil, []channel.RowChannel{out})

	done, runErr := startCopy(t, c)
	testutil.Eventually(t, func() bool { return out.Stats().BlockedPuts > 0 }, time.Second, time.Millisecond)

	c.SafeStop()
	testutil.AssertEqual(t, c.Status(), StatusHalting)

	var ids []int64
	for {
		r, ok := out.GetWait(10 * time.Millisecond)
		if ok {
			ids = append(ids, r[0].(int64))
			continue
		}
		if out.IsDone() && out.Len() == 0 {
			break
		}
	}
	testutil.WaitDone(t, done, 5*time.Second)
	testutil.AssertNoError(t, *runErr)
	testutil.AssertEqual(t, len(ids), 2)
	testutil.AssertEqual(t, ids[0], int64(0))
	testutil.AssertEqual(t, ids[1], int64(1))
}

func TestSnapshotReportsErrorBuffers(t *testing.T) {
	def := &pipeline.Definition{
		Name: "buffers",
		Stages: []pipeline.StageMeta{
			{Name: "solo", ErrorHandling: &pipeline.ErrorHandling{Target: "bad"}},
			{Name: "good"},
			{Name: "bad"},
		},
	}
	out := channel.New(4, channel.Endpoint{Stage: "solo"}, channel.Endpoint{Stage: "good"})
	errOut := channel.New(4, channel.Endpoint{Stage: "solo"}, channel.Endpoint{Stage: "bad"})
	c, err := New(Config{
		Definition:  def,
		Stage:       &def.Stages[0],
		Outputs:     []channel.RowChannel{out, errOut},
		Processor:   passThrough(),
		WaitTimeout: time.Millisecond,
	})
	testutil.AssertNoError(t, err)
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()
	testutil.AssertNoError(t, c.Init(ctx))
	defer c.Cleanup()

	testutil.AssertNoError(t, c.PutRow(testSchema, row.Row{int64(1), "kept"}))
	testutil.AssertNoError(t, c.PutError(testSchema, row.Row{int64(2), "bad"}, 1, "rejected", "name", "E1"))
	testutil.AssertNoError(t, c.PutError(testSchema, row.Row{int64(3), "bad"}, 1, "rejected", "name", "E1"))

	snap := c.Snapshot()
	testutil.AssertEqual(t, snap.OutputRows, 1)
	testutil.AssertEqual(t, snap.ErrorRows, 2)
}

func TestGetRowEndOfInput(t *testing.T) {
	in := channel.New(4, channel.Endpoint{Stage: "src"}, channel.Endpoint{Stage: "solo"})
	testutil.AssertNoError(t, in.PutWait(testSchema, row.Row{int64(1), "a"}, time.Second))
	testutil.AssertNoError(t, in.PutWait(testSchema, row.Row{int64(2), "b"}, time.Second))
	in.MarkDone()

	c := singleCopy(t, passThrough(), []channel.RowChannel{in}, nil)
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()
	testutil.AssertNoError(t, c.Init(ctx))
	defer c.Cleanup()

	for _, want := range []int64{1, 2} {
		r, err := c.GetRow()
		testutil.AssertNoError(t, err)
		testutil.AssertEqual(t, r[0].(int64), want)
	}
	r, err := c.GetRow()
	testutil.AssertNoError(t, err)
	if r != nil {
		t.Fatalf("expected end of input, got %v", r)
	}
	testutil.AssertEqual(t, len(c.InputChannels()), 0)
	testutil.AssertEqual(t, c.InputSchema(), testSchema)
	testutil.AssertEqual(t, c.Counters().Read(), int64(2))
}

func TestStatusLifecycle(t *testing.T) {
	c := singleCopy(t, generate(3)(), nil, nil)
	testutil.AssertEqual(t, c.Status(), StatusEmpty)

	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()
	testutil.AssertNoError(t, c.Init(ctx))
	testutil.AssertEqual(t, c.Status(), StatusIdle)

	testutil.AssertNoError(t, c.Run(ctx))
	testutil.AssertEqual(t, c.Status(), StatusFinished)
	testutil.AssertEqual(t, c.Counters().Snapshot().Written, int64(3))

	err := c.Run(ctx)
	if !errors.Is(err, rferrors.ErrInvalidConfiguration) {
		t.Fatalf("expected a second run to be refused, got %v", err)
	}

	c.Cleanup()
	c.Cleanup()
	testutil.AssertEqual(t, c.Status(), StatusDisposed)
	testutil.AssertEqual(t, c.Snapshot().Status, StatusDisposed)
}

func TestProcessorPanicIsFatal(t *testing.T) {
	c := singleCopy(t, procFunc(func(context.Context, Context) (bool, error) {
		panic("boom")
	}), nil, nil)
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()
	testutil.AssertNoError(t, c.Init(ctx))
	defer c.Cleanup()

	err := c.Run(ctx)
	testutil.AssertError(t, err)
	if !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected the panic value in %q", err)
	}
	testutil.AssertEqual(t, c.IsStopped(), true)
	testutil.AssertEqual(t, c.Status(), StatusStopped)
	testutil.AssertEqual(t, c.Snapshot().Error != "", true)
}

func TestFindChannelsRequireSingleCopy(t *testing.T) {
	def := &pipeline.Definition{
		Name: "find",
		Stages: []pipeline.StageMeta{
			{Name: "multi", Copies: 2},
			{Name: "single"},
			{Name: "join"},
		},
		Hops: []pipeline.Hop{{From: "multi", To: "join"}, {From: "single", To: "join"}},
	}
	run := newTestRun(t, def, nil)
	join := run.copy("join", 0)

	_, err := join.FindInputChannel("multi")
	if !errors.Is(err, rferrors.ErrInvalidConfiguration) {
		t.Fatalf("expected multi-copy lookup to fail, got %v", err)
	}
	ch, err := join.FindInputChannel("single")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, ch.Origin().Stage, "single")

	out, err := run.copy("single", 0).FindOutputChannel("join")
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, out, ch)

	_, err = join.FindInputChannel("nowhere")
	testutil.AssertError(t, err)
}

type countingListener struct {
	mu                    sync.Mutex
	read, written, errors int
	active, finished      int
}

func (l *countingListener) RowRead(*row.Schema, row.Row) {
	l.mu.Lock()
	l.read++
	l.mu.Unlock()
}

func (l *countingListener) RowWritten(*row.Schema, row.Row) {
	l.mu.Lock()
	l.written++
	l.mu.Unlock()
}

func (l *countingListener) ErrorRowWritten(*row.Schema, row.Row) {
	l.mu.Lock()
	l.errors++
	l.mu.Unlock()
}

func (l *countingListener) OnActive(*Copy) {
	l.mu.Lock()
	l.active++
	l.mu.Unlock()
}

func (l *countingListener) OnFinished(*Copy) {
	l.mu.Lock()
	l.finished++
	l.mu.Unlock()
}

func TestListeners(t *testing.T) {
	def := twoStages(pipeline.StageMeta{Name: "gen"}, pipeline.StageMeta{Name: "pass"})
	def.Stages = append(def.Stages, pipeline.StageMeta{Name: "sink"})
	def.Hops = append(def.Hops, pipeline.Hop{From: "pass", To: "sink"})
	run := newTestRun(t, def, map[string]func(int) Processor{
		"gen":  fromGenerator(4),
		"sink": func(int) Processor { return (&collector{}).processor() },
	})

	l := &countingListener{}
	pass := run.copy("pass", 0)
	pass.AddRowListener(l)
	pass.AddStageListener(l)

	testutil.AssertNoError(t, run.execute(t))

	l.mu.Lock()
	defer l.mu.Unlock()
	testutil.AssertEqual(t, l.read, 4)
	testutil.AssertEqual(t, l.written, 4)
	testutil.AssertEqual(t, l.errors, 0)
	testutil.AssertEqual(t, l.active, 1)
	testutil.AssertEqual(t, l.finished, 1)
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{})
	testutil.AssertError(t, err)

	def := &pipeline.Definition{Stages: []pipeline.StageMeta{{Name: "x", Type: "mystery"}}}
	_, err = New(Config{Definition: def, Stage: &def.Stages[0]})
	testutil.AssertError(t, err)
	if !rferrors.IsValidationError(err) {
		t.Fatalf("expected a validation error, got %v", err)
	}
}
