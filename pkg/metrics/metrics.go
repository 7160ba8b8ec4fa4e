package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all metric instances for a rowflow process.
type Registry struct {
	// Stage Copy Metrics
	RowsRead     *prometheus.CounterVec
	RowsWritten  *prometheus.CounterVec
	RowsRejected *prometheus.CounterVec
	StageErrors  *prometheus.CounterVec
	CopiesActive *prometheus.GaugeVec

	// Channel Metrics
	ChannelBufferSize  *prometheus.GaugeVec
	ChannelBufferUsage *prometheus.GaugeVec
	BackpressureEvents *prometheus.CounterVec

	// Throttle Metrics
	ThrottleWaitTime *prometheus.HistogramVec
	ThrottleTokens   *prometheus.GaugeVec

	// Run Metrics
	RunsStarted  *prometheus.CounterVec
	RunsFinished *prometheus.CounterVec
	RunDuration  *prometheus.HistogramVec
	Deadlocks    *prometheus.CounterVec
}

// NewRegistry creates a new metrics registry with the given Prometheus registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	cfg := DefaultConfig()
	cfg.Registry = reg
	return NewWithConfig(cfg)
}

// NewWithConfig creates a registry from cfg. It returns nil when metrics
// are disabled; every Registry method accepts a nil receiver.
func NewWithConfig(cfg Config) *Registry {
	if !cfg.Enabled {
		return nil
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.DefaultRegisterer
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = "rowflow"
	}
	factory := promauto.With(cfg.Registry)
	labels := cfg.Labels

	counter := func(subsystem, name, help string, vars ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, vars)
	}
	gauge := func(subsystem, name, help string, vars ...string) *prometheus.GaugeVec {
		return factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, vars)
	}

	return &Registry{
		RowsRead:     counter("step", "rows_read_total", "Total number of rows read by stage copies", "stage", "copy"),
		RowsWritten:  counter("step", "rows_written_total", "Total number of rows written by stage copies", "stage", "copy"),
		RowsRejected: counter("step", "rows_rejected_total", "Total number of rows rejected to error handling", "stage", "copy"),
		StageErrors:  counter("step", "errors_total", "Total number of fatal stage copy failures", "stage", "category"),
		CopiesActive: gauge("step", "copies_active", "Number of stage copies currently running", "pipeline"),

		ChannelBufferSize:  gauge("channel", "buffer_size", "Channel buffer capacity", "channel"),
		ChannelBufferUsage: gauge("channel", "buffer_usage", "Current channel buffer usage", "channel"),
		BackpressureEvents: counter("channel", "backpressure_events_total", "Total number of puts that found a full channel", "channel"),

		ThrottleWaitTime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   ns,
			Subsystem:   "throttle",
			Name:        "wait_duration_seconds",
			Help:        "Time spent waiting for the row throttle",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		}, []string{"stage"}),
		ThrottleTokens: gauge("throttle", "tokens_available", "Number of throttle tokens currently available", "stage"),

		RunsStarted:  counter("run", "started_total", "Total number of pipeline runs started", "pipeline"),
		RunsFinished: counter("run", "finished_total", "Total number of pipeline runs finished by result", "pipeline", "result"),
		RunDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   ns,
			Subsystem:   "run",
			Name:        "duration_seconds",
			Help:        "Wall time of pipeline runs",
			Buckets:     prometheus.ExponentialBuckets(0.01, 4, 10),
			ConstLabels: labels,
		}, []string{"pipeline"}),
		Deadlocks: counter("run", "deadlocks_total", "Total number of confirmed deadlocks", "stage"),
	}
}

// CopyMetrics caches the per-copy children of the row counters.
type CopyMetrics struct {
	read     prometheus.Counter
	written  prometheus.Counter
	rejected prometheus.Counter
}

// Copy returns the row counters of one stage copy, or nil when r is nil.
func (r *Registry) Copy(stage string, copyNr int) *CopyMetrics {
	if r == nil {
		return nil
	}
	nr := strconv.Itoa(copyNr)
	return &CopyMetrics{
		read:     r.RowsRead.WithLabelValues(stage, nr),
		written:  r.RowsWritten.WithLabelValues(stage, nr),
		rejected: r.RowsRejected.WithLabelValues(stage, nr),
	}
}

func (c *CopyMetrics) Read() {
	if c != nil {
		c.read.Inc()
	}
}

func (c *CopyMetrics) Written() {
	if c != nil {
		c.written.Inc()
	}
}

func (c *CopyMetrics) Rejected() {
	if c != nil {
		c.rejected.Inc()
	}
}

// StageFailed counts a fatal failure of stage in category.
func (r *Registry) StageFailed(stage, category string) {
	if r != nil {
		r.StageErrors.WithLabelValues(stage, category).Inc()
	}
}

// DeadlockDetected counts a confirmed deadlock reported by stage.
func (r *Registry) DeadlockDetected(stage string) {
	if r != nil {
		r.Deadlocks.WithLabelValues(stage).Inc()
	}
}

// ObserveChannel records the capacity and occupancy of a channel.
func (r *Registry) ObserveChannel(name string, size, used int) {
	if r == nil {
		return
	}
	r.ChannelBufferSize.WithLabelValues(name).Set(float64(size))
	r.ChannelBufferUsage.WithLabelValues(name).Set(float64(used))
}

// Backpressure counts a put that found name full.
func (r *Registry) Backpressure(name string) {
	if r != nil {
		r.BackpressureEvents.WithLabelValues(name).Inc()
	}
}

// ActiveCopies sets the number of running copies of pipeline.
func (r *Registry) ActiveCopies(pipeline string, n int) {
	if r != nil {
		r.CopiesActive.WithLabelValues(pipeline).Set(float64(n))
	}
}

// RunStarted counts a started run.
func (r *Registry) RunStarted(pipeline string) {
	if r != nil {
		r.RunsStarted.WithLabelValues(pipeline).Inc()
	}
}

// RunFinished counts a finished run and records its duration.
func (r *Registry) RunFinished(pipeline, result string, seconds float64) {
	if r == nil {
		return
	}
	r.RunsFinished.WithLabelValues(pipeline, result).Inc()
	r.RunDuration.WithLabelValues(pipeline).Observe(seconds)
}
