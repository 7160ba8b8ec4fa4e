package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func value(m prometheus.Metric) float64 {
	var out dto.Metric
	if err := m.Write(&out); err != nil {
		return -1
	}
	if out.Counter != nil {
		return out.Counter.GetValue()
	}
	return out.Gauge.GetValue()
}

// Example_basicUsage demonstrates recording stage copy counters.
func Example_basicUsage() {
	registry := NewRegistry(prometheus.NewRegistry())

	cm := registry.Copy("orders", 0)
	cm.Read()
	cm.Read()
	cm.Written()

	fmt.Println(value(registry.RowsRead.WithLabelValues("orders", "0")))
	fmt.Println(value(registry.RowsWritten.WithLabelValues("orders", "0")))

	// Output:
	// 2
	// 1
}

// Example_disabled demonstrates that a disabled registry records nothing.
func Example_disabled() {
	registry := NewWithConfig(Config{Enabled: false})

	registry.Copy("orders", 0).Read()
	registry.ObserveChannel("a.0 - b.0", 10, 3)

	fmt.Println(registry == nil)

	// Output:
	// true
}

// Example_configuration demonstrates different metrics configurations.
func Example_configuration() {
	defaultConfig := DefaultConfig()
	fmt.Printf("Default enabled: %v\n", defaultConfig.Enabled)
	fmt.Printf("Default namespace: %s\n", defaultConfig.Namespace)

	customConfig := Config{
		Enabled:   true,
		Registry:  prometheus.NewRegistry(),
		Namespace: "etl",
		Labels:    prometheus.Labels{"node": "slave-1"},
	}
	registry := NewWithConfig(customConfig)
	registry.ObserveChannel("a.0 - b.0", 10, 4)
	fmt.Println(value(registry.ChannelBufferUsage.WithLabelValues("a.0 - b.0")))

	// Output:
	// Default enabled: true
	// Default namespace: rowflow
	// 4
}
