// Package metrics provides Prometheus instrumentation for rowflow runs.
//
// A Registry is created once per process and handed to the run
// supervisor, which passes it on to every stage copy:
//
//	reg := metrics.NewRegistry(prometheus.NewRegistry())
//	cm := reg.Copy("orders", 0)
//	cm.Read()
//
// A nil *Registry is valid and records nothing, so components never need
// to check whether metrics are enabled.
//
// # Available Metrics
//
//   - rowflow_step_rows_read_total{stage,copy}
//   - rowflow_step_rows_written_total{stage,copy}
//   - rowflow_step_rows_rejected_total{stage,copy}
//   - rowflow_step_errors_total{stage,category}
//   - rowflow_step_copies_active{pipeline}
//   - rowflow_channel_buffer_size{channel}
//   - rowflow_channel_buffer_usage{channel}
//   - rowflow_channel_backpressure_events_total{channel}
//   - rowflow_throttle_wait_duration_seconds{stage}
//   - rowflow_throttle_tokens_available{stage}
//   - rowflow_run_started_total{pipeline}
//   - rowflow_run_finished_total{pipeline,result}
//   - rowflow_run_duration_seconds{pipeline}
//   - rowflow_run_deadlocks_total{stage}
//
// Expose them over HTTP with promhttp, or through the status server in
// package status.
package metrics
