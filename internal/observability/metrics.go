package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "crop_advisor"

// Metrics holds the Prometheus counters, histograms, and gauges for the advisory service.
type Metrics struct {
	MessagesConsumed *prometheus.CounterVec
	HandleErrors     *prometheus.CounterVec
	PipelineRunning  *prometheus.GaugeVec

	// Batch processing metrics.
	BatchSize               *prometheus.HistogramVec
	BatchProcessingDuration *prometheus.HistogramVec

	// Rule evaluation metrics.
	RulesFired     *prometheus.CounterVec // labels: granularity, type
	UnknownCrops   prometheus.Counter
	FeedbackErrors prometheus.Counter

	// Notification metrics.
	Notifications     *prometheus.CounterVec // labels: outcome={emitted,suppressed,dropped}, lane={alert,recommendation}
	DeliveryFailures  *prometheus.CounterVec // labels: sink={push,email,history}
	DedupCacheEntries prometheus.Gauge
	PendingAcks       prometheus.Gauge
	Acks              *prometheus.CounterVec // labels: result={acknowledged,unknown,expired}

	// Growth scheduler metrics.
	StageTransitions *prometheus.CounterVec
	SchedulerRuns    prometheus.Counter
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		MessagesConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_consumed_total",
			Help:      "Total messages read from source topics.",
		}, []string{"pipeline"}),
		HandleErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handle_errors_total",
			Help:      "Messages dropped because they could not be handled.",
		}, []string{"pipeline"}),
		PipelineRunning: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}, []string{"pipeline"}),
		BatchSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of messages per batch extracted from Kafka.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}, []string{"pipeline"}),
		BatchProcessingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete batch handling cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}, []string{"pipeline"}),
		RulesFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rules_fired_total",
			Help:      "Candidate recommendations produced by the rule engine.",
		}, []string{"granularity", "type"}),
		UnknownCrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unknown_crops_total",
			Help:      "Fields skipped because their crop has no profile.",
		}),
		FeedbackErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feedback_lookup_errors_total",
			Help:      "Feedback factor lookups that failed and fell back to no adjustment.",
		}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Dedup decisions by outcome and delivery lane.",
		}, []string{"outcome", "lane"}),
		DeliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Failed deliveries by sink.",
		}, []string{"sink"}),
		DedupCacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dedup_cache_entries",
			Help:      "Live entries in the notification dedup cache.",
		}),
		PendingAcks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_acks",
			Help:      "Alerts awaiting acknowledgement.",
		}),
		Acks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "acks_total",
			Help:      "Acknowledgement outcomes.",
		}, []string{"result"}),
		StageTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_transitions_total",
			Help:      "Growth stage transitions by target stage.",
		}, []string{"stage"}),
		SchedulerRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_runs_total",
			Help:      "Completed growth-stage scheduler scans.",
		}),
	}

	prometheus.MustRegister(
		m.MessagesConsumed,
		m.HandleErrors,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.RulesFired,
		m.UnknownCrops,
		m.FeedbackErrors,
		m.Notifications,
		m.DeliveryFailures,
		m.DedupCacheEntries,
		m.PendingAcks,
		m.Acks,
		m.StageTransitions,
		m.SchedulerRuns,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		MessagesConsumed:        prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "messages_consumed_total"}, []string{"pipeline"}),
		HandleErrors:            prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "handle_errors_total"}, []string{"pipeline"}),
		PipelineRunning:         prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: namespace, Name: "pipeline_running"}, []string{"pipeline"}),
		BatchSize:               prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: namespace, Name: "batch_size"}, []string{"pipeline"}),
		BatchProcessingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: namespace, Name: "batch_processing_duration_seconds"}, []string{"pipeline"}),
		RulesFired:              prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "rules_fired_total"}, []string{"granularity", "type"}),
		UnknownCrops:            prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "unknown_crops_total"}),
		FeedbackErrors:          prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "feedback_lookup_errors_total"}),
		Notifications:           prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "notifications_total"}, []string{"outcome", "lane"}),
		DeliveryFailures:        prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "delivery_failures_total"}, []string{"sink"}),
		DedupCacheEntries:       prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "dedup_cache_entries"}),
		PendingAcks:             prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "pending_acks"}),
		Acks:                    prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "acks_total"}, []string{"result"}),
		StageTransitions:        prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "stage_transitions_total"}, []string{"stage"}),
		SchedulerRuns:           prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "scheduler_runs_total"}),
	}
}
