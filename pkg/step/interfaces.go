package step

import (
	"context"
	"log/slog"

	"github.com/vnykmshr/rowflow/pkg/pipeline"
	"github.com/vnykmshr/rowflow/pkg/row"
	"github.com/vnykmshr/rowflow/pkg/streaming/channel"
)

// Processor is the business logic of a stage. Each copy gets its own
// Processor, so implementations need no locking of their own.
type Processor interface {
	// Init prepares the processor before any row flows.
	Init(ctx context.Context, sc Context) error

	// ProcessRow handles one unit of work. It returns false once there
	// is nothing more to do.
	ProcessRow(ctx context.Context, sc Context) (bool, error)

	// Dispose releases what Init acquired. It runs once after the last
	// ProcessRow call.
	Dispose(sc Context)
}

// BeforeStarter is implemented by processors that need a hook between a
// successful init of the whole run and the first ProcessRow call.
type BeforeStarter interface {
	BeforeStartProcessing(sc Context) error
}

// Stopper is implemented by processors that must interrupt blocking work,
// such as a running query, when the copy is stopped.
type Stopper interface {
	StopRunning(sc Context)
}

// Cleaner is implemented by processors that hold resources until the
// whole run is over.
type Cleaner interface {
	Cleanup(sc Context)
}

// Factory creates the processor for one copy of a stage.
type Factory func(meta *pipeline.StageMeta) (Processor, error)

// RowSource reads rows from the inputs of a copy.
type RowSource interface {
	// GetRow returns the next row from any input, or nil once every
	// input is exhausted or the copy was stopped.
	GetRow() (row.Row, error)

	// GetRowFrom returns the next row from ch only.
	GetRowFrom(ch channel.RowChannel) (row.Row, error)

	// InputSchema is the schema of the last row read.
	InputSchema() *row.Schema

	// FindInputChannel returns the input fed by the single copy of stage from.
	FindInputChannel(from string) (channel.RowChannel, error)
}

// RowSink writes rows to the outputs of a copy.
type RowSink interface {
	// PutRow routes the row according to the stage's partitioning or
	// distribution settings.
	PutRow(schema *row.Schema, r row.Row) error

	// PutRowTo writes the row to ch only.
	PutRowTo(schema *row.Schema, r row.Row, ch channel.RowChannel) error

	// FindOutputChannel returns the output towards the single copy of stage to.
	FindOutputChannel(to string) (channel.RowChannel, error)
}

// ErrorEmitter rejects rows.
type ErrorEmitter interface {
	// PutError sends the row with diagnostic fields to the error stage.
	// Without error handling it returns a fatal data quality error.
	PutError(schema *row.Schema, r row.Row, nrErrors int64, descriptions, fieldNames, codes string) error
}

// Lifecycle exposes the run state to a processor.
type Lifecycle interface {
	IsStopped() bool
	IsPaused() bool

	// StopAll asks the whole run to stop.
	StopAll()

	// SetOutputDone marks every output done.
	SetOutputDone()
}

// Context is everything a Processor can do with its copy.
type Context interface {
	RowSource
	RowSink
	ErrorEmitter
	Lifecycle

	Name() string
	CopyNr() int
	PartitionID() string
	Meta() *pipeline.StageMeta
	Counters() *Counters
	Logger() *slog.Logger
}

// RowListener observes every row a copy reads or writes. Listeners are
// called on the copy's goroutine and must not block.
type RowListener interface {
	RowRead(schema *row.Schema, r row.Row)
	RowWritten(schema *row.Schema, r row.Row)
	ErrorRowWritten(schema *row.Schema, r row.Row)
}

// StageListener observes a copy becoming active and finishing.
type StageListener interface {
	OnActive(c *Copy)
	OnFinished(c *Copy)
}

// Run is the view of the whole run a copy needs.
type Run interface {
	// StopAll stops every copy of the run.
	StopAll()

	// Copies and IsBefore let the deadlock detector inspect the run.
	Copies() []*Copy
	IsBefore(upstream, downstream string) bool
}
