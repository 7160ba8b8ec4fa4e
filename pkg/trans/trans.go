package trans

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/vnykmshr/rowflow/pkg/cluster"
	rferrors "github.com/vnykmshr/rowflow/pkg/common/errors"
	"github.com/vnykmshr/rowflow/pkg/deadlock"
	"github.com/vnykmshr/rowflow/pkg/dispatch"
	"github.com/vnykmshr/rowflow/pkg/distribute"
	"github.com/vnykmshr/rowflow/pkg/metrics"
	"github.com/vnykmshr/rowflow/pkg/partition"
	"github.com/vnykmshr/rowflow/pkg/pipeline"
	"github.com/vnykmshr/rowflow/pkg/step"
	"github.com/vnykmshr/rowflow/pkg/streaming/remote"
)

// State is the lifecycle state of a run.
type State int32

const (
	StateNew State = iota
	StatePreparing
	StatePrepared
	StateRunning
	StateFinished
	StateStopped
	StateFailed
)

var stateNames = [...]string{
	StateNew:       "New",
	StatePreparing: "Preparing",
	StatePrepared:  "Prepared",
	StateRunning:   "Running",
	StateFinished:  "Finished",
	StateStopped:   "Stopped",
	StateFailed:    "Failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "Unknown"
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Config holds the run-wide settings.
type Config struct {
	// RunID identifies the run in logs and metrics. Defaults to a random UUID.
	RunID string

	Metrics      *metrics.Registry
	Logger       *slog.Logger
	Partitioners *partition.Registry
	Distributors *distribute.Registry

	// Sockets tracks remote step listeners. A run creates its own when nil
	// and releases it when finished.
	Sockets *remote.SocketRepository

	// Store shares the clustered distribution table between the runs of a
	// cluster. A definition that carries a table publishes it under
	// ClusterID; a slave definition without one loads it.
	Store     cluster.Store
	ClusterID string

	// InitConcurrency bounds the number of copies initialized at once.
	// Zero or less means no limit.
	InitConcurrency int

	// MonitorInterval is the cadence of the status monitor. Zero disables it.
	MonitorInterval time.Duration

	BlockSize            int
	WaitTimeout          time.Duration
	Deadlock             deadlock.Config
	RemoteConnectTimeout time.Duration
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	sc := step.DefaultConfig()
	return Config{
		BlockSize:            sc.BlockSize,
		WaitTimeout:          sc.WaitTimeout,
		Deadlock:             sc.Deadlock,
		RemoteConnectTimeout: sc.RemoteConnectTimeout,
	}
}

// Trans is one run of a pipeline definition.
type Trans struct {
	id      string
	def     *pipeline.Definition
	factory step.Factory
	cfg     Config
	log     *slog.Logger

	dispatcher *dispatch.Dispatcher
	ownSockets bool

	state  atomic.Int32
	active atomic.Int64

	mu       sync.RWMutex
	copies   []*step.Copy
	started  time.Time
	finished time.Time
	result   error

	done    chan struct{}
	monitor *cron.Cron
}

var _ step.Run = (*Trans)(nil)

// New creates a run of def. The definition is validated; processors are
// created by factory during Prepare.
func New(def *pipeline.Definition, factory step.Factory, cfg Config) (*Trans, error) {
	if def == nil {
		return nil, rferrors.NewValidationError("trans", "Definition", nil, "cannot be nil")
	}
	if factory == nil {
		return nil, rferrors.NewValidationError("trans", "Factory", nil, "cannot be nil")
	}
	if err := def.Validate().Err(); err != nil {
		return nil, err
	}
	if cfg.MonitorInterval < 0 {
		return nil, rferrors.NewValidationError("trans", "MonitorInterval", cfg.MonitorInterval, "must not be negative")
	}

	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	if cfg.ClusterID == "" {
		cfg.ClusterID = def.Name
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Partitioners == nil {
		cfg.Partitioners = partition.NewRegistry()
	}
	if cfg.Distributors == nil {
		cfg.Distributors = distribute.NewRegistry()
	}

	t := &Trans{
		id:      cfg.RunID,
		def:     def,
		factory: factory,
		cfg:     cfg,
		log:     cfg.Logger.With("run", cfg.RunID, "pipeline", def.Name),
		done:    make(chan struct{}),
	}
	if t.cfg.Sockets == nil {
		t.cfg.Sockets = remote.NewSocketRepository(t.log)
		t.ownSockets = true
	}
	return t, nil
}

// ID returns the run id.
func (t *Trans) ID() string { return t.id }

// Definition returns the pipeline definition of the run.
func (t *Trans) Definition() *pipeline.Definition { return t.def }

// State returns the lifecycle state of the run.
func (t *Trans) State() State { return State(t.state.Load()) }

// Copies returns every Stage Copy of the run.
func (t *Trans) Copies() []*step.Copy {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.copies
}

// Copy returns the given copy of a stage, or nil.
func (t *Trans) Copy(stage string, copyNr int) *step.Copy {
	for _, c := range t.Copies() {
		if c.Name() == stage && c.CopyNr() == copyNr {
			return c
		}
	}
	return nil
}

// IsBefore reports whether downstream is reachable from upstream.
func (t *Trans) IsBefore(upstream, downstream string) bool {
	return t.def.IsBefore(upstream, downstream)
}

// Prepare wires and initializes every copy. When any copy fails to
// initialize, all copies are cleaned up and a *RunError is returned.
func (t *Trans) Prepare(ctx context.Context) error {
	if !t.state.CompareAndSwap(int32(StateNew), int32(StatePreparing)) {
		return fmt.Errorf("%w: run %s is %s", rferrors.ErrInvalidConfiguration, t.id, t.State())
	}

	if err := t.prepare(ctx); err != nil {
		var se *rferrors.StageError
		var runErr *rferrors.RunError
		if !errors.As(err, &runErr) && errors.As(err, &se) {
			err = &rferrors.RunError{RunID: t.id, Failures: []*rferrors.StageError{se}}
		}
		t.cleanup()
		t.state.Store(int32(StateFailed))
		t.finish(err)
		return err
	}
	t.state.Store(int32(StatePrepared))
	t.log.Debug("run prepared", "copies", len(t.copies))
	return nil
}

func (t *Trans) prepare(ctx context.Context) error {
	if err := t.shareDistribution(ctx); err != nil {
		return err
	}

	t.dispatcher = dispatch.New(t.def)
	if err := t.dispatcher.Allocate(); err != nil {
		return err
	}

	var copies []*step.Copy
	for i := range t.def.Stages {
		meta := &t.def.Stages[i]
		for nr := 0; nr < meta.CopyCount(); nr++ {
			c, err := t.newCopy(meta, nr)
			if err != nil {
				return err
			}
			copies = append(copies, c)
		}
	}
	t.mu.Lock()
	t.copies = copies
	t.mu.Unlock()

	var (
		g        errgroup.Group
		failedMu sync.Mutex
		failed   []*rferrors.StageError
	)
	if t.cfg.InitConcurrency > 0 {
		g.SetLimit(t.cfg.InitConcurrency)
	}
	for _, c := range copies {
		c := c
		g.Go(func() error {
			if err := c.Init(ctx); err != nil {
				failedMu.Lock()
				failed = append(failed, rferrors.Categorize(c.Name(), c.CopyNr(), rferrors.Configuration, err))
				failedMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(failed) > 0 {
		return &rferrors.RunError{RunID: t.id, Failures: failed}
	}
	return nil
}

func (t *Trans) newCopy(meta *pipeline.StageMeta, nr int) (*step.Copy, error) {
	proc, err := t.factory(meta)
	if err != nil {
		return nil, rferrors.NewStageError(meta.Name, nr, rferrors.Configuration, err)
	}
	inputs, outputs, err := t.dispatcher.Wire(meta.Name, nr)
	if err != nil {
		return nil, rferrors.NewStageError(meta.Name, nr, rferrors.Configuration, err)
	}
	c, err := step.New(step.Config{
		Definition:           t.def,
		Stage:                meta,
		CopyNr:               nr,
		Inputs:               inputs,
		Outputs:              outputs,
		Processor:            proc,
		Run:                  t,
		Partitioners:         t.cfg.Partitioners,
		Distributors:         t.cfg.Distributors,
		Sockets:              t.cfg.Sockets,
		Metrics:              t.cfg.Metrics,
		Logger:               t.log,
		BlockSize:            t.cfg.BlockSize,
		WaitTimeout:          t.cfg.WaitTimeout,
		Deadlock:             t.cfg.Deadlock,
		RemoteConnectTimeout: t.cfg.RemoteConnectTimeout,
	})
	if err != nil {
		return nil, rferrors.NewStageError(meta.Name, nr, rferrors.Configuration, err)
	}
	c.AddStageListener(t)
	return c, nil
}

// shareDistribution publishes or loads the clustered distribution table.
func (t *Trans) shareDistribution(ctx context.Context) error {
	if t.cfg.Store == nil {
		return nil
	}
	if len(t.def.Distribution) > 0 {
		if err := t.cfg.Store.Save(ctx, t.cfg.ClusterID, t.def.DistributionTable()); err != nil {
			return rferrors.NewOperationError("trans", "save distribution", err)
		}
		return nil
	}
	if t.def.SlaveServer == "" {
		return nil
	}
	table, err := t.cfg.Store.Load(ctx, t.cfg.ClusterID)
	if err != nil {
		return rferrors.NewOperationError("trans", "load distribution", err)
	}
	t.def.Distribution = table.Entries()
	return nil
}

// Start runs every copy in its own goroutine. It returns at once; use
// WaitUntilFinished for the outcome.
func (t *Trans) Start(ctx context.Context) error {
	if !t.state.CompareAndSwap(int32(StatePrepared), int32(StateRunning)) {
		return fmt.Errorf("%w: run %s is %s, not prepared", rferrors.ErrInvalidConfiguration, t.id, t.State())
	}

	t.mu.Lock()
	t.started = time.Now()
	t.mu.Unlock()
	t.cfg.Metrics.RunStarted(t.def.Name)
	if err := t.startMonitor(); err != nil {
		t.log.Warn("status monitor disabled", "error", err)
	}
	t.log.Info("run started", "copies", len(t.copies))

	var g errgroup.Group
	for _, c := range t.Copies() {
		c := c
		g.Go(func() error { return c.Run(ctx) })
	}
	go func() {
		_ = g.Wait()
		t.stopMonitor()
		t.cleanup()
		t.complete()
	}()
	return nil
}

// complete records the outcome once every copy returned.
func (t *Trans) complete() {
	var failed []*rferrors.StageError
	stopped := false
	for _, c := range t.Copies() {
		var se *rferrors.StageError
		if errors.As(c.Err(), &se) {
			failed = append(failed, se)
		}
		if c.IsStopped() {
			stopped = true
		}
	}

	var err error
	switch {
	case len(failed) > 0:
		err = &rferrors.RunError{RunID: t.id, Failures: failed}
		t.state.Store(int32(StateFailed))
	case stopped:
		t.state.Store(int32(StateStopped))
	default:
		t.state.Store(int32(StateFinished))
	}
	t.finish(err)
}

func (t *Trans) finish(err error) {
	t.mu.Lock()
	t.result = err
	t.finished = time.Now()
	started := !t.started.IsZero()
	var elapsed time.Duration
	if started {
		elapsed = t.finished.Sub(t.started)
	}
	t.mu.Unlock()

	state := t.State()
	if started {
		t.cfg.Metrics.RunFinished(t.def.Name, state.String(), elapsed.Seconds())
	}
	if err != nil {
		t.log.Error("run failed", "state", state.String(), "elapsed", elapsed, "error", err)
	} else {
		t.log.Info("run ended", "state", state.String(), "elapsed", elapsed)
	}
	close(t.done)
}

// cleanup disposes every copy and releases the sockets owned by the run.
func (t *Trans) cleanup() {
	for _, c := range t.Copies() {
		c.Cleanup()
	}
	if t.ownSockets {
		t.cfg.Sockets.ReleaseAll()
	}
}

// Done is closed once the run ended.
func (t *Trans) Done() <-chan struct{} { return t.done }

// WaitUntilFinished blocks until the run ended or ctx is done. It returns
// the *RunError of a failed run, or ctx's error.
func (t *Trans) WaitUntilFinished(ctx context.Context) error {
	select {
	case <-t.done:
		return t.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the outcome of an ended run.
func (t *Trans) Err() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.result
}

// Execute prepares, starts and waits for the run.
func (t *Trans) Execute(ctx context.Context) error {
	if err := t.Prepare(ctx); err != nil {
		return err
	}
	if err := t.Start(ctx); err != nil {
		return err
	}
	return t.WaitUntilFinished(ctx)
}

// StopAll stops every copy. Rows in flight are discarded.
func (t *Trans) StopAll() {
	for _, c := range t.Copies() {
		c.Stop()
	}
}

// SafeStop stops the source stages and lets the rows they already
// produced drain through the rest of the run.
func (t *Trans) SafeStop() {
	t.log.Info("safe stop requested")
	for _, src := range t.def.SourceStages() {
		for _, c := range t.Copies() {
			if c.Name() == src.Name {
				c.SafeStop()
			}
		}
	}
}

// Pause suspends row traffic in every copy.
func (t *Trans) Pause() {
	for _, c := range t.Copies() {
		c.Pause()
	}
}

// Resume resumes every paused copy.
func (t *Trans) Resume() {
	for _, c := range t.Copies() {
		c.Resume()
	}
}

// IsPaused reports whether any copy is paused.
func (t *Trans) IsPaused() bool {
	for _, c := range t.Copies() {
		if c.IsPaused() {
			return true
		}
	}
	return false
}

func (t *Trans) OnActive(*step.Copy) {
	t.cfg.Metrics.ActiveCopies(t.def.Name, int(t.active.Add(1)))
}

func (t *Trans) OnFinished(*step.Copy) {
	t.cfg.Metrics.ActiveCopies(t.def.Name, int(t.active.Add(-1)))
}

// Status is a read-only snapshot of a run.
type Status struct {
	RunID    string          `json:"runId"`
	Pipeline string          `json:"pipeline"`
	State    State           `json:"state"`
	Paused   bool            `json:"paused"`
	Active   int64           `json:"activeCopies"`
	Elapsed  time.Duration   `json:"elapsed"`
	Error    string          `json:"error,omitempty"`
	Copies   []step.Snapshot `json:"copies"`
}

// Status returns a snapshot of the run and every copy.
func (t *Trans) Status() Status {
	s := Status{
		RunID:    t.id,
		Pipeline: t.def.Name,
		State:    t.State(),
		Paused:   t.IsPaused(),
		Active:   t.active.Load(),
	}

	t.mu.RLock()
	switch {
	case t.started.IsZero():
	case t.finished.IsZero():
		s.Elapsed = time.Since(t.started)
	default:
		s.Elapsed = t.finished.Sub(t.started)
	}
	if t.result != nil {
		s.Error = t.result.Error()
	}
	copies := t.copies
	t.mu.RUnlock()

	s.Copies = make([]step.Snapshot, len(copies))
	for i, c := range copies {
		s.Copies[i] = c.Snapshot()
	}
	return s
}

// StageStatus returns the snapshots of the copies of one stage.
func (t *Trans) StageStatus(stage string) ([]step.Snapshot, bool) {
	var out []step.Snapshot
	for _, c := range t.Copies() {
		if c.Name() == stage {
			out = append(out, c.Snapshot())
		}
	}
	return out, len(out) > 0
}
