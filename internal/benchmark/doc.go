// Package benchmark holds end-to-end throughput benchmarks of whole runs.
package benchmark
