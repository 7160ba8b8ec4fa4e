package step

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	rferrors "github.com/vnykmshr/rowflow/pkg/common/errors"
	"github.com/vnykmshr/rowflow/pkg/deadlock"
	"github.com/vnykmshr/rowflow/pkg/distribute"
	"github.com/vnykmshr/rowflow/pkg/errorrate"
	"github.com/vnykmshr/rowflow/pkg/metrics"
	"github.com/vnykmshr/rowflow/pkg/partition"
	"github.com/vnykmshr/rowflow/pkg/pipeline"
	"github.com/vnykmshr/rowflow/pkg/ratelimit"
	"github.com/vnykmshr/rowflow/pkg/row"
	"github.com/vnykmshr/rowflow/pkg/streaming/channel"
	"github.com/vnykmshr/rowflow/pkg/streaming/remote"
)

// Config configures a Copy.
type Config struct {
	Definition *pipeline.Definition
	Stage      *pipeline.StageMeta
	CopyNr     int

	// Inputs and Outputs are the local channels wired by the dispatcher.
	Inputs  []channel.RowChannel
	Outputs []channel.RowChannel

	Processor Processor

	// Run is used to stop the whole run and to look for deadlocks. A copy
	// without a Run only stops itself.
	Run Run

	Partitioners *partition.Registry
	Distributors *distribute.Registry
	Sockets      *remote.SocketRepository
	Metrics      *metrics.Registry
	Logger       *slog.Logger

	// BlockSize is the number of rows read from one input before moving
	// to the next.
	BlockSize int

	// WaitTimeout bounds each wait on a channel, so stop and pause
	// requests are seen quickly.
	WaitTimeout time.Duration

	Deadlock deadlock.Config

	// RemoteConnectTimeout bounds dialing a remote input.
	RemoteConnectTimeout time.Duration
}

var (
	_ Context       = (*Copy)(nil)
	_ deadlock.Node = (*Copy)(nil)
)

// DefaultBlockSize is the number of rows read from one input in a row.
const DefaultBlockSize = 500

// DefaultConfig returns defaults for the tuning fields of Config.
func DefaultConfig() Config {
	return Config{
		BlockSize:            DefaultBlockSize,
		WaitTimeout:          time.Millisecond,
		Deadlock:             deadlock.DefaultConfig(),
		RemoteConnectTimeout: 30 * time.Second,
	}
}

// Copy is one running instance of a stage.
type Copy struct {
	cfg  Config
	def  *pipeline.Definition
	meta *pipeline.StageMeta
	proc Processor
	log  *slog.Logger

	phase       atomic.Int32
	stopped     atomic.Bool
	safeStopped atomic.Bool
	stopOnce    sync.Once
	stopCh      chan struct{}
	ctx         context.Context
	cancel      context.CancelFunc
	pause       gate

	counters Counters
	cm       *metrics.CopyMetrics

	// mu guards the channel lists. Row processing takes the read lock;
	// setup, input removal and error output identification take the
	// write lock.
	mu          sync.RWMutex
	inputs      []channel.RowChannel
	outputs     []channel.RowChannel
	errorOuts   []channel.RowChannel
	currentIn   int
	blockRead   int
	errorCursor int

	inputSchema     *row.Schema
	referenceSchema *row.Schema

	router      router
	errSchemaMu sync.Mutex
	errSchema   *row.Schema
	errSource   *row.Schema
	governor    *errorrate.Governor
	throttle    ratelimit.Throttle
	detector    *deadlock.Detector

	remoteOutputs []*remote.Output
	remoteInputs  []*remote.Input
	connectOnce   sync.Once
	connectErr    error

	rowListeners   []RowListener
	stageListeners []StageListener

	errMu     sync.Mutex
	err       *rferrors.StageError
	startedAt time.Time
	endedAt   time.Time

	cleanupOnce sync.Once
}

// New creates a copy in the Empty state.
func New(cfg Config) (*Copy, error) {
	if cfg.Stage == nil || cfg.Definition == nil {
		return nil, rferrors.NewValidationError("step", "Stage", nil, "stage and definition are required")
	}
	if cfg.Processor == nil {
		return nil, rferrors.NewValidationError("step", "Processor", nil, "cannot be nil").
			WithHint("register a processor factory for type " + cfg.Stage.Type)
	}
	defaults := DefaultConfig()
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = defaults.BlockSize
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = defaults.WaitTimeout
	}
	if cfg.Deadlock.CheckInterval <= 0 {
		cfg.Deadlock.CheckInterval = defaults.Deadlock.CheckInterval
	}
	if cfg.RemoteConnectTimeout <= 0 {
		cfg.RemoteConnectTimeout = defaults.RemoteConnectTimeout
	}
	if cfg.Partitioners == nil {
		cfg.Partitioners = partition.NewRegistry()
	}
	if cfg.Distributors == nil {
		cfg.Distributors = distribute.NewRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Sockets == nil {
		cfg.Sockets = remote.NewSocketRepository(cfg.Logger)
	}

	c := &Copy{
		cfg:     cfg,
		def:     cfg.Definition,
		meta:    cfg.Stage,
		proc:    cfg.Processor,
		stopCh:  make(chan struct{}),
		inputs:  append([]channel.RowChannel(nil), cfg.Inputs...),
		outputs: append([]channel.RowChannel(nil), cfg.Outputs...),
		cm:      cfg.Metrics.Copy(cfg.Stage.Name, cfg.CopyNr),
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.log = cfg.Logger.With("stage", cfg.Stage.Name, "copy", cfg.CopyNr)
	return c, nil
}

func (c *Copy) Name() string                 { return c.meta.Name }
func (c *Copy) CopyNr() int                  { return c.cfg.CopyNr }
func (c *Copy) PartitionID() string          { return c.meta.PartitionID(c.cfg.CopyNr) }
func (c *Copy) Meta() *pipeline.StageMeta    { return c.meta }
func (c *Copy) Counters() *Counters          { return &c.counters }
func (c *Copy) Logger() *slog.Logger         { return c.log }
func (c *Copy) LinesRead() int64             { return c.counters.Read() }
func (c *Copy) AddRowListener(l RowListener) { c.rowListeners = append(c.rowListeners, l) }
func (c *Copy) AddStageListener(l StageListener) {
	c.stageListeners = append(c.stageListeners, l)
}

// InputChannels returns the inputs that are not exhausted yet.
func (c *Copy) InputChannels() []channel.RowChannel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]channel.RowChannel(nil), c.inputs...)
}

// OutputChannels returns the outputs, excluding error outputs.
func (c *Copy) OutputChannels() []channel.RowChannel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]channel.RowChannel(nil), c.outputs...)
}

// ErrorChannels returns the outputs towards the error stage.
func (c *Copy) ErrorChannels() []channel.RowChannel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]channel.RowChannel(nil), c.errorOuts...)
}

// Init prepares routing, remote streams and the governor, then
// initializes the processor. On failure the copy ends up Stopped.
func (c *Copy) Init(ctx context.Context) error {
	c.phase.Store(int32(StatusInit))

	if err := c.init(ctx); err != nil {
		se := rferrors.Categorize(c.Name(), c.CopyNr(), rferrors.Configuration, err)
		c.setError(se)
		c.log.Error("init failed", "error", err)
		c.phase.Store(int32(StatusStopped))
		return se
	}
	c.phase.Store(int32(StatusIdle))
	return nil
}

func (c *Copy) init(ctx context.Context) error {
	if err := c.identifyErrorOutput(); err != nil {
		return err
	}
	if err := c.initRouting(); err != nil {
		return err
	}
	if eh := c.meta.ErrorHandling; eh != nil {
		gc := errorrate.Config{
			MaxErrors:        eh.MaxErrors,
			MaxPercentErrors: eh.MaxPercentErrors,
			MinPercentRows:   eh.MinPercentRows,
		}
		if err := gc.Validate(); err != nil {
			return err
		}
		c.governor = errorrate.New(gc)
	}
	if c.meta.RowsPerSecond > 0 {
		th, err := ratelimit.New(c.meta.RowsPerSecond)
		if err != nil {
			return err
		}
		c.throttle = ratelimit.WithMetrics(th, c.Name(), c.cfg.Metrics)
	}
	if c.cfg.Run != nil {
		d, err := deadlock.New(topology{c.cfg.Run}, c.cfg.Deadlock)
		if err != nil {
			return err
		}
		c.detector = d
	}
	if err := c.openRemoteSteps(); err != nil {
		return err
	}
	return c.proc.Init(ctx, c)
}

// identifyErrorOutput moves the outputs towards the error stage out of the
// normal outputs.
func (c *Copy) identifyErrorOutput() error {
	eh := c.meta.ErrorHandling
	if eh == nil || eh.Target == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.outputs[:0:0]
	for _, ch := range c.outputs {
		if strings.EqualFold(ch.Destination().Stage, eh.Target) {
			c.errorOuts = append(c.errorOuts, ch)
			continue
		}
		kept = append(kept, ch)
	}
	c.outputs = kept
	if len(c.errorOuts) == 0 {
		target, ok := c.def.FindStage(eh.Target)
		if ok && target.Virtual {
			return nil
		}
		return fmt.Errorf("%w: no output channel towards error stage %q", rferrors.ErrMissingChannel, eh.Target)
	}
	return nil
}

func (c *Copy) openRemoteSteps() error {
	capacity := c.def.ChannelCapacity()
	self := channel.Endpoint{Stage: c.Name(), Copy: c.CopyNr(), Server: c.def.SlaveServer}

	for _, rs := range c.meta.RemoteOutputs {
		if rs.LocalCopy != c.CopyNr() {
			continue
		}
		ch := channel.New(capacity, self, channel.Endpoint{Stage: rs.Stage, Copy: rs.Copy, Server: rs.Server})
		cfg := remote.DefaultOutputConfig(rs.Addr)
		cfg.Logger = c.log
		out := remote.NewOutput(ch, c.cfg.Sockets, cfg)
		if err := out.Open(); err != nil {
			return rferrors.NewStageError(c.Name(), c.CopyNr(), rferrors.Resource, err)
		}
		c.remoteOutputs = append(c.remoteOutputs, out)
		c.mu.Lock()
		c.outputs = append(c.outputs, ch)
		c.mu.Unlock()
		c.log.Debug("remote output opened", "addr", out.Addr(), "peer", ch.Destination().String())
	}

	for _, rs := range c.meta.RemoteInputs {
		if rs.LocalCopy != c.CopyNr() {
			continue
		}
		ch := channel.New(capacity, channel.Endpoint{Stage: rs.Stage, Copy: rs.Copy, Server: rs.Server}, self)
		cfg := remote.DefaultInputConfig(rs.Addr)
		cfg.ConnectTimeout = c.cfg.RemoteConnectTimeout
		cfg.Logger = c.log
		c.remoteInputs = append(c.remoteInputs, remote.NewInput(ch, cfg))
		c.mu.Lock()
		c.inputs = append(c.inputs, ch)
		c.mu.Unlock()
	}
	return nil
}

// openRemoteInputs connects every remote input once, on first read.
func (c *Copy) openRemoteInputs() error {
	c.connectOnce.Do(func() {
		for _, in := range c.remoteInputs {
			if err := in.Connect(c.ctx); err != nil {
				c.connectErr = rferrors.NewStageError(c.Name(), c.CopyNr(), rferrors.Resource, err)
				return
			}
		}
	})
	return c.connectErr
}

// Run processes rows until the processor is done or the copy is stopped.
// It returns the fatal error of the copy, if any.
func (c *Copy) Run(ctx context.Context) error {
	if Status(c.phase.Load()) != StatusIdle {
		return fmt.Errorf("%w: copy %s.%d is %s, not idle", rferrors.ErrInvalidConfiguration,
			c.Name(), c.CopyNr(), c.Status())
	}
	stopOnCancel := context.AfterFunc(ctx, c.Stop)
	defer stopOnCancel()

	c.errMu.Lock()
	c.startedAt = time.Now()
	c.errMu.Unlock()
	c.phase.Store(int32(StatusRunning))
	for _, l := range c.stageListeners {
		l.OnActive(c)
	}

	for _, out := range c.remoteOutputs {
		out.Start(func(err error) {
			c.fail(rferrors.NewStageError(c.Name(), c.CopyNr(), rferrors.Resource, err))
		})
	}

	if bs, ok := c.proc.(BeforeStarter); ok {
		if err := bs.BeforeStartProcessing(c); err != nil {
			c.fail(err)
		}
	}

	for !c.IsStopped() {
		more, err := c.processRow(ctx)
		if err != nil {
			c.fail(err)
			break
		}
		if !more {
			break
		}
	}

	c.SetOutputDone()
	c.proc.Dispose(c)

	c.errMu.Lock()
	c.endedAt = time.Now()
	c.errMu.Unlock()
	if c.IsStopped() {
		c.phase.Store(int32(StatusStopped))
	} else {
		c.phase.Store(int32(StatusFinished))
	}

	c.logSummary()
	for _, l := range c.stageListeners {
		l.OnFinished(c)
	}
	return c.Err()
}

func (c *Copy) processRow(ctx context.Context) (more bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor panicked: %v\n%s", r, debug.Stack())
		}
	}()
	return c.proc.ProcessRow(ctx, c)
}

// Cleanup waits for remote outputs to flush, then releases every socket
// and calls the processor's Cleanup hook. Safe to call more than once.
func (c *Copy) Cleanup() {
	c.cleanupOnce.Do(func() {
		for _, out := range c.remoteOutputs {
			if !c.IsStopped() {
				if err := out.Wait(); err != nil {
					c.log.Warn("remote output did not complete", "addr", out.Addr(), "error", err)
				}
			}
			out.Close()
		}
		for _, in := range c.remoteInputs {
			in.Close()
		}
		if cl, ok := c.proc.(Cleaner); ok {
			cl.Cleanup(c)
		}
		c.cancel()
		c.phase.Store(int32(StatusDisposed))
	})
}

// Stop asks the copy to stop. Blocking waits return promptly.
func (c *Copy) Stop() {
	c.stopOnce.Do(func() {
		c.stopped.Store(true)
		close(c.stopCh)
		c.cancel()
		if s, ok := c.proc.(Stopper); ok {
			s.StopRunning(c)
		}
		c.log.Debug("stop requested")
	})
}

// SafeStop stops the copy but lets rows it already accepted drain.
func (c *Copy) SafeStop() {
	c.safeStopped.Store(true)
	c.Stop()
}

// StopAll asks the whole run to stop.
func (c *Copy) StopAll() {
	if c.cfg.Run != nil {
		c.cfg.Run.StopAll()
		return
	}
	c.Stop()
}

func (c *Copy) IsStopped() bool     { return c.stopped.Load() }
func (c *Copy) IsSafeStopped() bool { return c.safeStopped.Load() }
func (c *Copy) IsPaused() bool      { return c.pause.isPaused() }

// Pause blocks row reads and writes until Resume or Stop.
func (c *Copy) Pause() { c.pause.pause() }

// Resume lifts a Pause.
func (c *Copy) Resume() { c.pause.resumeAll() }

// halted reports whether row traffic must end: stopped without safe stop.
func (c *Copy) halted() bool {
	return c.IsStopped() && !c.IsSafeStopped()
}

// SetOutputDone marks every output done.
func (c *Copy) SetOutputDone() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, ch := range c.outputs {
		ch.MarkDone()
	}
	for _, ch := range c.errorOuts {
		ch.MarkDone()
	}
}

// Status derives the lifecycle state from the phase and the flags.
func (c *Copy) Status() Status {
	s := Status(c.phase.Load())
	if s == StatusRunning {
		switch {
		case c.IsStopped():
			return StatusHalting
		case c.IsPaused():
			return StatusPaused
		}
	}
	return s
}

// Err returns the fatal error of the copy, or nil.
func (c *Copy) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err == nil {
		return nil
	}
	return c.err
}

// setError records se as the fatal error of the copy. It reports false
// when se was already recorded.
func (c *Copy) setError(se *rferrors.StageError) bool {
	c.errMu.Lock()
	if c.err == se {
		c.errMu.Unlock()
		return false
	}
	first := c.err == nil
	if first {
		c.err = se
	}
	c.errMu.Unlock()
	c.counters.IncErrors()
	if first {
		c.cfg.Metrics.StageFailed(c.Name(), se.Category.String())
	}
	return true
}

// fail records a fatal error and stops the run.
func (c *Copy) fail(err error) {
	se := rferrors.Categorize(c.Name(), c.CopyNr(), rferrors.Unknown, err)
	if !c.setError(se) {
		return
	}
	c.log.Error("stage failed", "category", se.Category.String(), "error", se.Err)
	c.StopAll()
}

// CanProcessOneRow reports whether a row can be read without waiting, or
// whether more input may still arrive.
func (c *Copy) CanProcessOneRow() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch len(c.inputs) {
	case 0:
		return false
	case 1:
		ch := c.inputs[0]
		return !ch.IsDone() && ch.Len() > 0
	default:
		allDone := true
		for _, ch := range c.inputs {
			if ch.Len() > 0 {
				return true
			}
			if !ch.IsDone() {
				allDone = false
			}
		}
		return !allDone
	}
}

func (c *Copy) logSummary() {
	s := c.counters.Snapshot()
	level := slog.LevelDebug
	if !s.Zero() {
		level = slog.LevelInfo
	}
	c.log.Log(context.Background(), level, "finished processing",
		"read", s.Read, "written", s.Written, "input", s.Input, "output", s.Output,
		"updated", s.Updated, "skipped", s.Skipped, "rejected", s.Rejected, "errors", s.Errors)
}

// Snapshot is the read-only status of a copy.
type Snapshot struct {
	Stage       string          `json:"stage"`
	Copy        int             `json:"copy"`
	PartitionID string          `json:"partitionId,omitempty"`
	Status      Status          `json:"status"`
	Counters    CounterSnapshot `json:"counters"`
	Elapsed     time.Duration   `json:"elapsed"`
	InputRows   int             `json:"inputBuffered"`
	OutputRows  int             `json:"outputBuffered"`
	ErrorRows   int             `json:"errorBuffered"`
	Paused      bool            `json:"paused"`
	Stopped     bool            `json:"stopped"`
	Error       string          `json:"error,omitempty"`
}

// Snapshot returns the status of the copy. It does not change any state.
func (c *Copy) Snapshot() Snapshot {
	s := Snapshot{
		Stage:       c.Name(),
		Copy:        c.CopyNr(),
		PartitionID: c.PartitionID(),
		Status:      c.Status(),
		Counters:    c.counters.Snapshot(),
		Paused:      c.IsPaused(),
		Stopped:     c.IsStopped(),
	}

	c.errMu.Lock()
	switch {
	case c.startedAt.IsZero():
	case c.endedAt.IsZero():
		s.Elapsed = time.Since(c.startedAt)
	default:
		s.Elapsed = c.endedAt.Sub(c.startedAt)
	}
	if c.err != nil {
		s.Error = c.err.Error()
	}
	c.errMu.Unlock()

	c.mu.RLock()
	for _, ch := range c.inputs {
		s.InputRows += ch.Len()
	}
	for _, ch := range c.outputs {
		s.OutputRows += ch.Len()
	}
	for _, ch := range c.errorOuts {
		s.ErrorRows += ch.Len()
	}
	c.mu.RUnlock()
	return s
}

// topology adapts a Run to the deadlock detector.
type topology struct{ run Run }

func (t topology) Nodes() []deadlock.Node {
	copies := t.run.Copies()
	nodes := make([]deadlock.Node, len(copies))
	for i, c := range copies {
		nodes[i] = c
	}
	return nodes
}

func (t topology) IsBefore(upstream, downstream string) bool {
	return t.run.IsBefore(upstream, downstream)
}
