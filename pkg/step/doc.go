// Package step runs the copies of a pipeline stage.
//
// A Copy is one running instance of a stage. It owns the input and output
// channels the dispatcher wired for it and drives a Processor, which holds
// the stage's business logic:
//
//	type upper struct{}
//
//	func (upper) Init(ctx context.Context, sc step.Context) error { return nil }
//	func (upper) Dispose(sc step.Context)                          {}
//
//	func (upper) ProcessRow(ctx context.Context, sc step.Context) (bool, error) {
//		r, err := sc.GetRow()
//		if err != nil || r == nil {
//			return false, err // no more input
//		}
//		r[0] = strings.ToUpper(r[0].(string))
//		return true, sc.PutRow(sc.InputSchema(), r)
//	}
//
// The Copy takes care of everything around the processor: reading inputs
// round-robin in blocks, routing rows by partitioning or distribution,
// blocking on full channels, honoring pause and stop requests, routing
// rejected rows to the error stage, checking the error-rate governor and
// the deadlock detector, and keeping counters.
//
// # Lifecycle
//
//	Empty -> Init -> Idle -> Running <-> Paused -> Halting -> Stopped | Finished -> Disposed
//
// Init prepares routing and calls Processor.Init. Run calls ProcessRow until
// it reports no more rows or the copy is stopped, marks the outputs done and
// calls Processor.Dispose. Cleanup releases sockets once the whole run is
// over.
//
// A fatal condition sets the copy's error count and asks the whole run to
// stop. Run returns the condition as an *errors.StageError naming the stage,
// the copy and the error category.
package step
