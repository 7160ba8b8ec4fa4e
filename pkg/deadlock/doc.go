// Package deadlock detects stage copies that wait on each other through
// full row buffers.
//
// A typical case is a stage that splits rows over two paths that join
// again downstream. When the joining stage reads from one input while the
// other input is full, the splitting stage blocks on its full output and
// never feeds the empty one. Neither side makes progress.
//
// A Detector is owned by the stalled copy and is consulted whenever that
// copy cannot get a row. It looks for an upstream copy whose inputs are
// all full while one of its outputs is full and another empty. A deadlock
// is only reported after the same observation is made twice, CheckInterval
// apart, with no rows read by either copy in between.
//
// The detector is a diagnostic aid. It may miss stalls but does not
// report a stall that resolves itself.
package deadlock
