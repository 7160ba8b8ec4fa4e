// Package dispatch creates the channels of a pipeline and hands each
// stage copy its inputs and outputs.
//
// For every enabled hop the Dispatcher compares the copy counts of both
// stages and picks a wiring pattern:
//
//	1 -> 1   one channel
//	1 -> N   one channel per consumer copy
//	N -> 1   one channel per producer copy
//	N -> N   copy i feeds copy i (swim lanes), unless rows are repartitioned
//	N -> M   every producer copy feeds every consumer copy
//
// Channels are registered under (from, fromCopy, to, toCopy). A stage
// copy's outputs are ordered by next stage in hop order, then by
// consumer copy; partition routing relies on that order.
package dispatch
