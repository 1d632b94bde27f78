package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// DataNodesTotal counts data nodes currently held in each status.
	DataNodesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dflow_data_nodes_total",
			Help: "Total number of data nodes by status",
		},
		[]string{"status"},
	)

	ApplicationNodesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dflow_application_nodes_total",
			Help: "Total number of application nodes by exec status",
		},
		[]string{"exec_status"},
	)

	BytesWrittenTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dflow_bytes_written_total",
			Help: "Total number of bytes written across all data nodes",
		},
	)

	EventsFiredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dflow_events_fired_total",
			Help: "Total number of events fired by kind",
		},
		[]string{"kind"},
	)

	EventSubscriberPanicsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dflow_event_subscriber_panics_total",
			Help: "Total number of event subscriber callbacks that panicked",
		},
	)

	BarrierExecutionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dflow_barrier_execution_duration_seconds",
			Help:    "Time taken for a barrier application's execute() to complete",
			Buckets: prometheus.DefBuckets,
		},
	)

	BarrierExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dflow_barrier_executions_total",
			Help: "Total number of barrier application executions by outcome",
		},
		[]string{"outcome"},
	)

	ContainerLaunchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dflow_container_launches_total",
			Help: "Total number of container-process application launches by outcome",
		},
		[]string{"outcome"},
	)

	ContainerRunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dflow_container_run_duration_seconds",
			Help:    "Wall-clock time of a container-process application run, from the start of Run until the container exits",
			Buckets: []float64{0.5, 1, 5, 10, 30, 60, 300, 900, 3600},
		},
	)
)

func init() {
	prometheus.MustRegister(
		DataNodesTotal,
		ApplicationNodesTotal,
		BytesWrittenTotal,
		EventsFiredTotal,
		EventSubscriberPanicsTotal,
		BarrierExecutionDuration,
		BarrierExecutionsTotal,
		ContainerLaunchesTotal,
		ContainerRunDuration,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
