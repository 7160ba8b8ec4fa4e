// Package steps holds the built-in stage processors.
//
//	generator  emits a fixed number of rows with an id and constant fields
//	dummy      passes rows through unchanged
//	validator  rejects rows whose required fields are empty
//	sqloutput  inserts rows into a table in batched transactions
//
// Stages name their processor with StageMeta.Type and configure it with
// StageMeta.Options, a JSON object decoded into the processor's options
// struct. Registry maps types to constructors; Factory adapts a registry to
// the run supervisor.
package steps
