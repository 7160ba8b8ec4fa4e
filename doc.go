/*
Package rowflow is a runtime for pipelines of row-processing stages.

A pipeline is a directed graph of stages. Each stage runs in one or more
copies, and every pair of connected copies shares a bounded row channel.
rowflow computes that wiring, moves rows between copies and supervises the
run.

Rows (pkg/row, pkg/streaming):
  - row: rows and their schemas
  - streaming/channel: bounded channels between local copies
  - streaming/remote: msgpack streams between copies in different processes

Routing (pkg/dispatch, pkg/partition, pkg/distribute, pkg/cluster):
  - dispatch: channel topology for every pair of stages
  - partition: mirror and keyed partitioning of rows
  - distribute: round-robin and load-balancing distribution
  - cluster: partition distribution tables shared through Redis

Execution (pkg/step, pkg/trans):
  - step: the runtime of one stage copy
  - trans: prepares, starts, pauses and stops a whole run
  - errorrate, deadlock: rejection limits and stall detection
  - ratelimit: per-stage row throttling

Surfaces (pkg/metrics, pkg/status, cmd/rowflow):
  - metrics: Prometheus counters and gauges
  - status: HTTP status and control routes
  - steps: built-in stages, including a SQL output

Example usage:

	import (
		"github.com/vnykmshr/rowflow/pkg/pipeline"
		"github.com/vnykmshr/rowflow/pkg/steps"
		"github.com/vnykmshr/rowflow/pkg/trans"
	)

	def, err := pipeline.LoadFile("pipeline.json")
	if err != nil {
		return err
	}
	t, err := trans.New(def, steps.Factory(), trans.DefaultConfig())
	if err != nil {
		return err
	}
	return t.Execute(ctx)
*/
package rowflow
